package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/nimbus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkFunc func(ctx context.Context, rec Record) error

func (f sinkFunc) AppendActionLog(ctx context.Context, rec Record) error { return f(ctx, rec) }

func ok(context.Context, Params) (models.ActionResult, error) {
	return models.Success(nil), nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("run_code", HandlerFunc(ok)))

	tests := []struct {
		name    string
		action  string
		handler Handler
	}{
		{"duplicate", "run_code", HandlerFunc(ok)},
		{"empty name", "", HandlerFunc(ok)},
		{"nil handler", "write_tests", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.action, tt.handler)
			assert.ErrorIs(t, err, ErrDuplicateAction)
		})
	}
	assert.Equal(t, []string{"run_code"}, r.Names())
}

func TestRegistry_Validate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("run_code", HandlerFunc(ok)))
	assert.NoError(t, r.Validate(DefaultCatalog()))

	require.NoError(t, r.Register("launch_rockets", HandlerFunc(ok)))
	assert.ErrorIs(t, r.Validate(DefaultCatalog()), ErrUnknownAction)
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()

	desc, found := c.Lookup("commit_changes")
	require.True(t, found)
	assert.Equal(t, models.CategoryGit, desc.Category)

	assert.Less(t, c.Position("write_tests"), c.Position("run_code"))
	assert.Equal(t, -1, c.Position("nope"))

	sel := c.Select([]string{"commit_changes", "nope", "research_and_plan"})
	require.Len(t, sel, 2)
	assert.Equal(t, "research_and_plan", sel[0].Name, "selection keeps catalog order")

	cont, found := c.Lookup(Continue)
	require.True(t, found)
	assert.Equal(t, models.CategoryDefault, cont.Category)
}

func TestSchema_Validate(t *testing.T) {
	schema := Schema{
		{Name: "file", Kind: KindString, Required: true},
		{Name: "count", Kind: KindInt, Default: 1},
		{Name: "force", Kind: KindBool},
		{Name: "tags", Kind: KindStrings},
	}

	t.Run("coerces and defaults", func(t *testing.T) {
		p, err := schema.Validate(map[string]any{
			"file":    "main.py",
			"tags":    []any{"a", "b"},
			"project": "demo",
		})
		require.NoError(t, err)
		assert.Equal(t, "main.py", p.String("file"))
		assert.Equal(t, 1, p.Int("count"))
		assert.False(t, p.Bool("force"))
		assert.Equal(t, []string{"a", "b"}, p.Strings("tags"))
		assert.Equal(t, "demo", p.String("project"), "undeclared keys pass through")
	})

	t.Run("json numbers become ints", func(t *testing.T) {
		p, err := schema.Validate(map[string]any{"file": "x", "count": float64(3)})
		require.NoError(t, err)
		assert.Equal(t, 3, p.Int("count"))
	})

	tests := []struct {
		name    string
		details map[string]any
		field   string
	}{
		{"missing required", map[string]any{}, "file"},
		{"wrong type", map[string]any{"file": 42}, "file"},
		{"fractional int", map[string]any{"file": "x", "count": 1.5}, "count"},
		{"bad list element", map[string]any{"file": "x", "tags": []any{"a", 1}}, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Validate(tt.details)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDispatch_Unknown(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	res := d.Dispatch(context.Background(), models.ActionDescriptor{Name: "nope"}, nil)

	assert.Equal(t, models.StatusUnknown, res.Status)
	recs := d.Log().Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "nope", recs[0].Name)
	assert.Equal(t, models.StatusUnknown, recs[0].Result.Status)
}

func TestDispatch_Outcomes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ok", HandlerFunc(ok)))
	require.NoError(t, r.Register("boom", HandlerFunc(func(context.Context, Params) (models.ActionResult, error) {
		return models.ActionResult{}, errors.New("boom")
	})))
	require.NoError(t, r.Register("panics", HandlerFunc(func(context.Context, Params) (models.ActionResult, error) {
		panic("oh no")
	})))
	require.NoError(t, r.Register("slow", HandlerFunc(func(ctx context.Context, _ Params) (models.ActionResult, error) {
		<-ctx.Done()
		return models.ActionResult{}, ctx.Err()
	})))
	require.NoError(t, r.Register("typed", WithSchema(Schema{{Name: "file", Kind: KindString, Required: true}}, ok)))

	d := NewDispatcher(r, WithHandlerTimeout(10*time.Millisecond))
	ctx := context.Background()

	tests := []struct {
		action string
		want   models.ResultStatus
	}{
		{"ok", models.StatusSuccess},
		{"boom", models.StatusError},
		{"panics", models.StatusError},
		{"slow", models.StatusTimeout},
		{"typed", models.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			res := d.Dispatch(ctx, models.ActionDescriptor{Name: tt.action}, nil)
			assert.Equal(t, tt.want, res.Status)
		})
	}

	recs := d.Log().Records()
	require.Len(t, recs, len(tests))
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.Seq)
	}
	assert.Equal(t, "validation", recs[4].Result.Payload["error_kind"])
}

func TestDispatch_SinkFailureDoesNotFailDispatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ok", HandlerFunc(ok)))

	var seen []Record
	sink := sinkFunc(func(_ context.Context, rec Record) error {
		seen = append(seen, rec)
		return errors.New("db locked")
	})
	d := NewDispatcher(r, WithLog(NewLog(sink, nil)))

	res := d.Dispatch(context.Background(), models.ActionDescriptor{Name: "ok"}, nil)
	assert.True(t, res.Succeeded())
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, d.Log().Len())
}
