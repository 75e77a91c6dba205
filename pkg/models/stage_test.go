package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_Valid(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		want  bool
	}{
		{"planning is valid", StagePlanning, true},
		{"implementation is valid", StageImplementation, true},
		{"testing is valid", StageTesting, true},
		{"review is valid", StageReview, true},
		{"empty string is invalid", Stage(""), false},
		{"uppercase is invalid", Stage("PLANNING"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Valid())
		})
	}
}

func TestStage_Next(t *testing.T) {
	next, ok := StagePlanning.Next()
	assert.True(t, ok)
	assert.Equal(t, StageImplementation, next)

	next, ok = StageTesting.Next()
	assert.True(t, ok)
	assert.Equal(t, StageReview, next)

	_, ok = StageReview.Next()
	assert.False(t, ok, "review is terminal")

	_, ok = Stage("bogus").Next()
	assert.False(t, ok)
}

func TestResultStatus_Valid(t *testing.T) {
	for _, s := range []ResultStatus{StatusSuccess, StatusFailed, StatusError, StatusTimeout, StatusUnknown} {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, ResultStatus("warning").Valid())
}

func TestActionResult_Accessors(t *testing.T) {
	r := Success(map[string]any{"file": "main.py", "tests_written": float64(3)})
	assert.True(t, r.Succeeded())
	assert.Equal(t, "main.py", r.String("file"))
	assert.Equal(t, 3, r.Int("tests_written"))
	assert.Equal(t, "", r.String("missing"))

	w := WarningResult("no project")
	assert.False(t, w.Succeeded())
	assert.Equal(t, "no project", w.Warning)
}

func TestDecisionContext_CopiesInputs(t *testing.T) {
	files := []string{"README.md"}
	ltm := map[string]any{"k": "v"}
	dc := NewDecisionContext(DecisionContext{Files: files, LongTermMemory: ltm})

	files[0] = "changed"
	ltm["k"] = "changed"

	assert.Equal(t, "README.md", dc.Files[0])
	assert.Equal(t, "v", dc.LongTermMemory["k"])
}

func TestProject_CloneAndHasFile(t *testing.T) {
	p := &Project{Name: "demo", Files: []string{"main.py"}}
	cp := p.Clone()
	cp.Files[0] = "other.py"

	assert.True(t, p.HasFile("main.py"))
	assert.False(t, p.HasFile("other.py"))
	assert.Nil(t, (*Project)(nil).Clone())
}
