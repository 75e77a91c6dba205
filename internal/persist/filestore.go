package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

// FileStore keeps memory and experiences in process and snapshots them to a
// JSON file.
type FileStore struct {
	mu          sync.Mutex
	path        string
	memory      map[string]any
	experiences []models.Experience
}

// NewFileStore returns a store snapshotting to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, memory: make(map[string]any)}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string {
	return f.path
}

// AddExperience records an experience.
func (f *FileStore) AddExperience(_ context.Context, e models.Experience) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.experiences = append(f.experiences, e)
	return nil
}

// RestoreExperiences replaces the in-memory experiences with exps, oldest
// first.
func (f *FileStore) RestoreExperiences(_ context.Context, exps []models.Experience) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.experiences = append([]models.Experience(nil), exps...)
	return nil
}

// RecentExperiences returns up to limit experiences, newest first.
func (f *FileStore) RecentExperiences(_ context.Context, limit int) ([]models.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Experience
	for i := len(f.experiences) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, f.experiences[i])
	}
	return out, nil
}

// LongTermMemory returns a copy of the memory map.
func (f *FileStore) LongTermMemory(context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.memory))
	for k, v := range f.memory {
		out[k] = v
	}
	return out, nil
}

// SaveLongTermMemory replaces the memory map. Values are stored in their
// JSON-decoded form so they read back the same after a snapshot.
func (f *FileStore) SaveLongTermMemory(_ context.Context, mem map[string]any) error {
	memory := make(map[string]any, len(mem))
	for k, v := range mem {
		nv, err := jsonValue(v)
		if err != nil {
			return fmt.Errorf("encode memory %s: %w", k, err)
		}
		memory[k] = nv
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memory = memory
	return nil
}

// SetMemory stores one long-term memory entry in its JSON-decoded form.
func (f *FileStore) SetMemory(_ context.Context, key string, value any) error {
	nv, err := jsonValue(value)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memory[key] = nv
	return nil
}

// jsonValue round-trips v through JSON, matching what LoadSnapshot yields.
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadSnapshot reads the snapshot file.
func (f *FileStore) LoadSnapshot(context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", f.path, ErrCorruptSnapshot, err)
	}
	return &snap, nil
}

// WriteSnapshot writes snap atomically: temp file, fsync, rename.
func (f *FileStore) WriteSnapshot(_ context.Context, snap models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

var (
	_ Store              = (*FileStore)(nil)
	_ ExperienceRestorer = (*FileStore)(nil)
)
