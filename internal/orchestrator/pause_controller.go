package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned by WaitIfPaused after Stop.
var ErrStopped = errors.New("orchestrator stopped")

// PauseController holds the loop's pause and stop flags. Stop is terminal.
type PauseController struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	// resumed is closed when a pause ends, by Resume or Stop.
	resumed chan struct{}
	logger  *zap.Logger
}

// NewPauseController creates a running controller.
func NewPauseController(logger *zap.Logger) *PauseController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PauseController{logger: logger}
}

// Pause holds the loop before its next iteration. It has no effect after Stop.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.stopped {
		return
	}
	p.paused = true
	p.resumed = make(chan struct{})
	p.logger.Info("loop paused")
}

// Resume releases a paused loop.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.release()
	p.logger.Info("loop resumed")
}

// Stop requests shutdown and releases any waiter.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.paused {
		p.release()
	}
	p.logger.Info("stop requested")
}

func (p *PauseController) release() {
	p.paused = false
	close(p.resumed)
}

// IsPaused reports whether the loop is paused.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsStopped reports whether Stop was called.
func (p *PauseController) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// WaitIfPaused blocks while paused. It returns ErrStopped after Stop and the
// context error on cancellation.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	for {
		p.mu.Lock()
		stopped, paused, resumed := p.stopped, p.paused, p.resumed
		p.mu.Unlock()

		switch {
		case stopped:
			return ErrStopped
		case !paused:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumed:
		}
	}
}
