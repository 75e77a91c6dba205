// Package action holds the action catalog, the handler registry and the
// dispatcher that executes actions by name.
package action

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

// Handler performs the effects of one action.
type Handler interface {
	Execute(ctx context.Context, params Params) (models.ActionResult, error)
}

// Schemer is implemented by handlers that declare parameters.
type Schemer interface {
	Schema() Schema
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params Params) (models.ActionResult, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, params Params) (models.ActionResult, error) {
	return f(ctx, params)
}

type schemaHandler struct {
	HandlerFunc
	schema Schema
}

func (h schemaHandler) Schema() Schema { return h.schema }

// WithSchema returns a handler that declares schema.
func WithSchema(schema Schema, fn HandlerFunc) Handler {
	return schemaHandler{HandlerFunc: fn, schema: schema}
}

// SchemaOf returns the declared schema of h, or nil.
func SchemaOf(h Handler) Schema {
	if s, ok := h.(Schemer); ok {
		return s.Schema()
	}
	return nil
}

// Registry maps action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h. Empty names, nil handlers and duplicates fail
// with ErrDuplicateAction.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("register: empty action name: %w", ErrDuplicateAction)
	}
	if h == nil {
		return fmt.Errorf("register %s: nil handler: %w", name, ErrDuplicateAction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("register %s: %w", name, ErrDuplicateAction)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler for name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate fails when a registered name is absent from the catalog.
func (r *Registry) Validate(c *Catalog) error {
	for _, name := range r.Names() {
		if !c.Contains(name) {
			return fmt.Errorf("handler %s: %w", name, ErrUnknownAction)
		}
	}
	return nil
}

// Defaults returns the schema defaults of the handler registered under
// name, or nil.
func (r *Registry) Defaults(name string) map[string]any {
	h, ok := r.Get(name)
	if !ok {
		return nil
	}
	return SchemaOf(h).Defaults()
}
