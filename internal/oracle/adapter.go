package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single decider call.
const DefaultTimeout = 30 * time.Second

// Adapter turns a decision context into exactly one action.
type Adapter struct {
	catalog  *action.Catalog
	policy   *policy.Config
	decider  Decider
	timeout  time.Duration
	defaults func(name string) map[string]any
	logger   *zap.Logger
	metrics  *metrics.Collectors
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDecider sets the external decider. Without one every decision falls
// back to scoring.
func WithDecider(d Decider) Option {
	return func(a *Adapter) { a.decider = d }
}

// WithTimeout bounds each decider call.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithDefaults supplies the details used for fallback decisions.
func WithDefaults(fn func(name string) map[string]any) Option {
	return func(a *Adapter) { a.defaults = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithMetrics sets the collectors updated per decision.
func WithMetrics(m *metrics.Collectors) Option {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter creates an adapter over catalog and policy tables.
func NewAdapter(catalog *action.Catalog, p *policy.Config, opts ...Option) *Adapter {
	if p == nil {
		p = policy.Default()
	}
	a := &Adapter{
		catalog: catalog,
		policy:  p,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Candidates returns the actions eligible in dc, in catalog order: the
// stage's preferred actions, minus git actions for unversioned projects.
func (a *Adapter) Candidates(dc models.DecisionContext) []models.ActionDescriptor {
	preferred := a.catalog.Select(a.policy.PreferredFor(dc.State, dc.Stage))
	out := make([]models.ActionDescriptor, 0, len(preferred))
	for _, desc := range preferred {
		if desc.Category == models.CategoryGit && !dc.IsVersioned {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// Decide always returns a decision. Decider errors, timeouts and invalid
// selections fall back to scoring; an empty candidate set yields the
// continue action.
func (a *Adapter) Decide(ctx context.Context, dc models.DecisionContext) Decision {
	candidates := a.Candidates(dc)
	if len(candidates) == 0 {
		return a.record(Decision{Action: action.Continue, Source: SourceDefault, Reason: "no candidates"})
	}
	dc = dc.WithCandidates(candidates)

	if a.decider == nil {
		return a.record(a.Fallback(dc, candidates, ErrNoDecider))
	}

	dctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	d, err := a.decider.Decide(dctx, dc, candidates)
	if err == nil && !contains(candidates, d.Action) {
		err = fmt.Errorf("%q: %w", d.Action, ErrInvalidSelection)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("decider timed out after %s: %w", a.timeout, err)
		}
		a.logger.Warn("decision oracle failed, using fallback",
			zap.String("state", string(dc.State)),
			zap.String("stage", string(dc.Stage)),
			zap.Error(err))
		return a.record(a.Fallback(dc, candidates, err))
	}

	d.Source = SourceOracle
	if d.Details == nil {
		d.Details = map[string]any{}
	}
	return a.record(d)
}

// Fallback scores candidates and picks the highest; ties go to the
// earliest in catalog order.
func (a *Adapter) Fallback(dc models.DecisionContext, candidates []models.ActionDescriptor, cause error) Decision {
	if len(candidates) == 0 {
		return Decision{Action: action.Continue, Source: SourceDefault, Reason: "no candidates"}
	}
	best, bestScore := candidates[0], a.policy.Score(dc.State, dc.Stage, candidates[0])
	for _, desc := range candidates[1:] {
		if score := a.policy.Score(dc.State, dc.Stage, desc); score > bestScore {
			best, bestScore = desc, score
		}
	}

	d := Decision{Action: best.Name, Source: SourceFallback, Details: map[string]any{}}
	if a.defaults != nil {
		for k, v := range a.defaults(best.Name) {
			d.Details[k] = v
		}
	}
	if cause != nil {
		d.Reason = cause.Error()
	}
	return d
}

func (a *Adapter) record(d Decision) Decision {
	if a.metrics != nil {
		a.metrics.DecisionsTotal.WithLabelValues(string(d.Source)).Inc()
	}
	return d
}

func contains(candidates []models.ActionDescriptor, name string) bool {
	for _, c := range candidates {
		if c.Name == name {
			return true
		}
	}
	return false
}

// HasDecider reports whether an external decider is configured.
func (a *Adapter) HasDecider() bool {
	return a.decider != nil
}
