package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Signal file names inside <state_dir>/signals.
const (
	SignalStop  = "stop"
	SignalPause = "pause"
)

// SignalsDir returns the signals directory under stateDir.
func SignalsDir(stateDir string) string {
	return filepath.Join(stateDir, "signals")
}

// SendSignal creates the named signal file under stateDir.
func SendSignal(stateDir, name string) error {
	dir := SignalsDir(stateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignal removes the named signal file. A missing file is not an error.
func ClearSignal(stateDir, name string) error {
	err := os.Remove(filepath.Join(SignalsDir(stateDir), name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// SignalWatcher turns signal files into PauseController calls. Creating
// stop stops the loop; creating pause pauses it and removing pause resumes.
type SignalWatcher struct {
	dir    string
	ctrl   *PauseController
	logger *zap.Logger

	// mu makes each file check and the controller call atomic so late
	// events cannot override a newer file state.
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewSignalWatcher watches <stateDir>/signals. A stale stop file from a
// previous run is removed. If fsnotify is unavailable the watcher falls
// back to polling in Poll.
func NewSignalWatcher(stateDir string, ctrl *PauseController, logger *zap.Logger) (*SignalWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := SignalsDir(stateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := ClearSignal(stateDir, SignalStop); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		dir:    dir,
		ctrl:   ctrl,
		logger: logger,
		done:   make(chan struct{}),
	}
	sw.Poll()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("signal watcher unavailable, polling", zap.Error(err))
		return sw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		logger.Warn("signal watcher unavailable, polling", zap.Error(err))
		return sw, nil
	}
	sw.watcher = watcher

	go sw.watch()
	return sw, nil
}

func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handle(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Debug("signal watcher error", zap.Error(err))
		}
	}
}

func (sw *SignalWatcher) handle(event fsnotify.Event) {
	switch filepath.Base(event.Name) {
	case SignalStop, SignalPause:
		sw.Poll()
	}
}

// Poll applies the current signal files to the controller. It also covers
// events the watcher missed.
func (sw *SignalWatcher) Poll() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if exists(filepath.Join(sw.dir, SignalStop)) {
		sw.ctrl.Stop()
	}
	if exists(filepath.Join(sw.dir, SignalPause)) {
		sw.ctrl.Pause()
	} else {
		sw.ctrl.Resume()
	}
}

// Dir returns the watched directory.
func (sw *SignalWatcher) Dir() string {
	return sw.dir
}

// Close stops watching.
func (sw *SignalWatcher) Close() {
	sw.closeOnce.Do(func() {
		close(sw.done)
		if sw.watcher != nil {
			sw.watcher.Close()
		}
	})
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
