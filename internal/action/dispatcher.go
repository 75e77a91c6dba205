package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"go.uber.org/zap"
)

// Dispatcher executes actions by name. Calls are strictly sequential.
type Dispatcher struct {
	mu       sync.Mutex
	registry *Registry
	log      *Log
	logger   *zap.Logger
	metrics  *metrics.Collectors
	timeout  time.Duration
	now      func() time.Time
	seq      int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLog sets the log records are appended to.
func WithLog(l *Log) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the collectors updated on each dispatch.
func WithMetrics(m *metrics.Collectors) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithHandlerTimeout bounds each handler call. Zero means no bound.
func WithHandlerTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = NewLog(nil, d.logger)
	}
	return d
}

// Log returns the dispatch log.
func (d *Dispatcher) Log() *Log {
	return d.log
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the handler registered for desc.Name with details. It never
// returns an error: unknown actions, validation failures, handler errors and
// panics are all reported in the result. Every call is logged.
func (d *Dispatcher) Dispatch(ctx context.Context, desc models.ActionDescriptor, details map[string]any) models.ActionResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	result := d.run(ctx, desc, details)
	if !result.Status.Valid() {
		result.Status = models.StatusUnknown
	}

	d.seq++
	d.log.Append(ctx, Record{
		Seq:       d.seq,
		Name:      desc.Name,
		Result:    result,
		Timestamp: d.now(),
	})

	if d.metrics != nil {
		d.metrics.ActionsTotal.WithLabelValues(desc.Name, string(result.Status)).Inc()
		d.metrics.ActionDuration.Observe(time.Since(start).Seconds())
	}
	d.logger.Debug("action dispatched",
		zap.String("action", desc.Name),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", time.Since(start)))
	return result
}

func (d *Dispatcher) run(ctx context.Context, desc models.ActionDescriptor, details map[string]any) models.ActionResult {
	h, ok := d.registry.Get(desc.Name)
	if !ok {
		return models.ActionResult{
			Status:  models.StatusUnknown,
			Payload: map[string]any{"message": fmt.Sprintf("no handler registered for %q", desc.Name)},
		}
	}

	params, err := SchemaOf(h).Validate(details)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Action = desc.Name
		}
		return models.ActionResult{
			Status:  models.StatusFailed,
			Payload: map[string]any{"message": err.Error(), "error_kind": "validation"},
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	result, err := d.invoke(ctx, h, params)
	if err != nil {
		status := models.StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = models.StatusTimeout
		}
		d.logger.Warn("action failed", zap.String("action", desc.Name), zap.Error(err))
		return models.ActionResult{
			Status:  status,
			Payload: map[string]any{"message": err.Error()},
		}
	}
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, params Params) (result models.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Execute(ctx, params)
}
