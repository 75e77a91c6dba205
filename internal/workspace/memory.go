package workspace

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/nimbus/internal/git"
)

// Memory is an in-memory Workspace for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	projects map[string]*memProject
}

type memProject struct {
	files    map[string][]byte
	versions *memRepo
}

type memRepo struct {
	branch   string
	branches map[string]bool
	commits  []git.Commit
	dirty    bool
}

// NewMemory returns an empty in-memory workspace.
func NewMemory() *Memory {
	return &Memory{projects: make(map[string]*memProject)}
}

func (m *Memory) ProjectPath(name string) string {
	return "/memory/" + name
}

func (m *Memory) ProjectExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.projects[name]
	return ok
}

func (m *Memory) ListProjects() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.projects))
	for n := range m.projects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) CreateProject(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("create project %q: invalid name", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[name]; ok {
		return "", fmt.Errorf("create project %s: %w", name, ErrProjectExists)
	}
	m.projects[name] = &memProject{files: make(map[string][]byte)}
	return m.ProjectPath(name), nil
}

func (m *Memory) ListFiles(project string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.project(project)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(p.files))
	for f := range p.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (m *Memory) FileExists(project, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.project(project)
	if err != nil {
		return false
	}
	clean, err := cleanName(name)
	if err != nil {
		return false
	}
	_, ok := p.files[clean]
	return ok
}

func (m *Memory) CreateFile(project, name string, content []byte) error {
	return m.write(project, name, content, func(exists bool) error {
		if exists {
			return fmt.Errorf("create %s: %w", name, ErrFileExists)
		}
		return nil
	})
}

func (m *Memory) ModifyFile(project, name string, content []byte) error {
	return m.write(project, name, content, func(exists bool) error {
		if !exists {
			return fmt.Errorf("modify %s: %w", name, ErrFileNotFound)
		}
		return nil
	})
}

func (m *Memory) WriteFile(project, name string, content []byte) error {
	return m.write(project, name, content, func(bool) error { return nil })
}

func (m *Memory) ReadFile(project, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, clean, err := m.lookup(project, name)
	if err != nil {
		return nil, err
	}
	data, ok := p.files[clean]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, ErrFileNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) DeleteFile(project, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, clean, err := m.lookup(project, name)
	if err != nil {
		return err
	}
	if _, ok := p.files[clean]; !ok {
		return fmt.Errorf("delete %s: %w", name, ErrFileNotFound)
	}
	delete(p.files, clean)
	p.touch()
	return nil
}

func (m *Memory) RenameFile(project, oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, src, err := m.lookup(project, oldName)
	if err != nil {
		return err
	}
	dst, err := cleanName(newName)
	if err != nil {
		return err
	}
	data, ok := p.files[src]
	if !ok {
		return fmt.Errorf("rename %s: %w", oldName, ErrFileNotFound)
	}
	if _, exists := p.files[dst]; exists {
		return fmt.Errorf("rename to %s: %w", newName, ErrFileExists)
	}
	delete(p.files, src)
	p.files[dst] = data
	p.touch()
	return nil
}

func (m *Memory) MoveFile(project, name, dir string) error {
	return m.RenameFile(project, name, path.Join(dir, path.Base(name)))
}

func (m *Memory) CopyFile(project, src, dst string) error {
	data, err := m.ReadFile(project, src)
	if err != nil {
		return err
	}
	return m.CreateFile(project, dst, data)
}

func (m *Memory) IsVersioned(project string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.project(project)
	return err == nil && p.versions != nil
}

func (m *Memory) InitRepo(project string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.project(project)
	if err != nil {
		return err
	}
	if p.versions == nil {
		p.versions = &memRepo{
			branch:   "master",
			branches: map[string]bool{"master": true},
			dirty:    len(p.files) > 0,
		}
	}
	return nil
}

func (m *Memory) Commit(project, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.repo(project)
	if err != nil {
		return "", err
	}
	if !r.dirty {
		return "", git.ErrNothingToCommit
	}
	hash := fmt.Sprintf("%040x", len(r.commits)+1)
	r.commits = append(r.commits, git.Commit{
		Hash:    hash,
		Author:  git.Signature.Name,
		Message: message,
		When:    time.Now(),
	})
	r.dirty = false
	return hash, nil
}

func (m *Memory) CreateBranch(project, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.repo(project)
	if err != nil {
		return err
	}
	if r.branches[name] {
		return fmt.Errorf("create branch %s: already exists", name)
	}
	r.branches[name] = true
	return nil
}

func (m *Memory) SwitchBranch(project, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.repo(project)
	if err != nil {
		return err
	}
	if !r.branches[name] {
		return fmt.Errorf("checkout %s: branch not found", name)
	}
	r.branch = name
	return nil
}

func (m *Memory) Log(project string, limit int) ([]git.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.repo(project)
	if err != nil {
		return nil, err
	}
	var out []git.Commit
	for i := len(r.commits) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.commits[i])
	}
	return out, nil
}

func (m *Memory) write(project, name string, content []byte, check func(exists bool) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, clean, err := m.lookup(project, name)
	if err != nil {
		return err
	}
	_, exists := p.files[clean]
	if err := check(exists); err != nil {
		return err
	}
	p.files[clean] = append([]byte(nil), content...)
	p.touch()
	return nil
}

func (m *Memory) project(name string) (*memProject, error) {
	p, ok := m.projects[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrProjectNotFound)
	}
	return p, nil
}

func (m *Memory) lookup(project, name string) (*memProject, string, error) {
	p, err := m.project(project)
	if err != nil {
		return nil, "", err
	}
	clean, err := cleanName(name)
	if err != nil {
		return nil, "", err
	}
	return p, clean, nil
}

func (m *Memory) repo(project string) (*memRepo, error) {
	p, err := m.project(project)
	if err != nil {
		return nil, err
	}
	if p.versions == nil {
		return nil, fmt.Errorf("%s: %w", project, git.ErrNotRepository)
	}
	return p.versions, nil
}

func (p *memProject) touch() {
	if p.versions != nil {
		p.versions.dirty = true
	}
}

// Seed creates project with files, for tests.
func (m *Memory) Seed(project string, files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[project]
	if !ok {
		p = &memProject{files: make(map[string][]byte)}
		m.projects[project] = p
	}
	for name, content := range files {
		p.files[strings.TrimPrefix(path.Clean(name), "/")] = []byte(content)
	}
	p.touch()
}

var _ Workspace = (*Memory)(nil)
