package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/exec"
	"github.com/ShayCichocki/nimbus/internal/workspace"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out   exec.Output
	err   error
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) (exec.Output, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.out, f.err
}

func (f *fakeRunner) LookPath(string) bool { return true }

type fixture struct {
	ws     *workspace.Memory
	runner *fakeRunner
	disp   *action.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := workspace.NewMemory()
	runner := &fakeRunner{}
	reg := action.NewRegistry()
	require.NoError(t, New(Deps{Workspace: ws, Runner: runner}).Register(reg))
	return &fixture{ws: ws, runner: runner, disp: action.NewDispatcher(reg)}
}

func (f *fixture) run(name string, details map[string]any) models.ActionResult {
	desc, _ := action.DefaultCatalog().Lookup(name)
	desc.Name = name
	return f.disp.Dispatch(context.Background(), desc, details)
}

func TestRegister_MatchesCatalog(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, New(Deps{Workspace: workspace.NewMemory()}).Register(reg))
	require.NoError(t, reg.Validate(action.DefaultCatalog()))

	for _, desc := range action.DefaultCatalog().All() {
		_, ok := reg.Get(desc.Name)
		assert.True(t, ok, "no handler for %s", desc.Name)
	}
}

func TestStartNewProject(t *testing.T) {
	f := newFixture(t)

	res := f.run(action.StartNewProject, map[string]any{"project_name": "demo", "init_git": true})
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "demo", res.String(action.PayloadProject))
	assert.Equal(t, true, res.Payload[action.PayloadCommitMade])

	files, err := f.ws.ListFiles("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "main.py", "requirements.txt"}, files)
	assert.True(t, f.ws.IsVersioned("demo"))

	again := f.run(action.StartNewProject, map[string]any{"project_name": "demo"})
	assert.Equal(t, models.StatusFailed, again.Status)
}

func TestStartNewProject_GeneratedName(t *testing.T) {
	f := newFixture(t)
	res := f.run(action.StartNewProject, nil)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.String(action.PayloadProject), "project-")
	assert.False(t, f.ws.IsVersioned(res.String(action.PayloadProject)))
}

func TestContinueProject(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, models.StatusFailed, f.run(action.ContinueProject, nil).Status)

	f.ws.Seed("demo", map[string]string{"main.py": ""})
	res := f.run(action.ContinueProject, nil)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "demo", res.String(action.PayloadProject))

	assert.Equal(t, models.StatusFailed, f.run(action.ContinueProject, map[string]any{"project_name": "ghost"}).Status)
}

func TestNoProjectFails(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"research_and_plan", "write_tests", "view_files", "analyze_code", "exit_project"} {
		res := f.run(name, nil)
		assert.Equal(t, models.StatusFailed, res.Status, name)
	}
}

func TestLifecycleArtifacts(t *testing.T) {
	f := newFixture(t)
	f.ws.Seed("demo", map[string]string{
		"README.md": "# demo\n",
		"main.py":   "def add(a, b):\n    return a + b\n\ndef _hidden():\n    pass\n",
	})
	project := map[string]any{action.ProjectParam: "demo"}

	res := f.run("research_and_plan", project)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.True(t, f.ws.FileExists("demo", "research_and_plan.md"))

	res = f.run("implement_initial_prototype", project)
	require.Equal(t, models.StatusSuccess, res.Status)
	main, err := f.ws.ReadFile("demo", "main.py")
	require.NoError(t, err)
	assert.Contains(t, string(main), "# Prototype implementation")

	res = f.run("write_tests", project)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Int(action.PayloadTestsWritten), "add and run, not _hidden")
	tests, err := f.ws.ReadFile("demo", "test_main.py")
	require.NoError(t, err)
	assert.Contains(t, string(tests), "def test_add(self):")
	assert.NotContains(t, string(tests), "_hidden")

	res = f.run("write_tests", project)
	assert.Equal(t, models.StatusFailed, res.Status, "test file already exists")

	res = f.run("analyze_code", project)
	require.Equal(t, models.StatusSuccess, res.Status)
	report, err := f.ws.ReadFile("demo", "code_analysis.md")
	require.NoError(t, err)
	assert.Contains(t, string(report), "## main.py")
	assert.Contains(t, string(report), "## test_main.py")
}

func TestFileActions(t *testing.T) {
	f := newFixture(t)
	f.ws.Seed("demo", map[string]string{"main.py": "print('needle')\n"})
	with := func(kv ...any) map[string]any {
		m := map[string]any{action.ProjectParam: "demo"}
		for i := 0; i < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1]
		}
		return m
	}

	assert.Equal(t, models.StatusSuccess, f.run("create_file", with("file_name", "a.py")).Status)
	assert.Equal(t, models.StatusFailed, f.run("create_file", with("file_name", "a.py")).Status)
	assert.Equal(t, models.StatusFailed, f.run("create_file", with()).Status, "validation")
	assert.Equal(t, models.StatusSuccess, f.run("edit_file", with("file_name", "a.py", "content", "needle")).Status)
	assert.Equal(t, models.StatusSuccess, f.run("copy_file", with("file_name", "a.py", "destination", "b.py")).Status)
	assert.Equal(t, models.StatusSuccess, f.run("rename_file", with("file_name", "b.py", "new_name", "c.py")).Status)
	assert.Equal(t, models.StatusSuccess, f.run("move_file", with("file_name", "c.py", "destination", "lib")).Status)
	assert.Equal(t, models.StatusSuccess, f.run("save_file", with("file_name", "d.py")).Status)
	assert.Equal(t, models.StatusSuccess, f.run("delete_file", with("file_name", "d.py")).Status)
	assert.Equal(t, models.StatusFailed, f.run("delete_file", with("file_name", "d.py")).Status)
	assert.Equal(t, models.StatusFailed, f.run("save_file", with("file_name", "../x")).Status)

	res := f.run("search_in_files", with("search_text", "needle"))
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, []string{"a.py", "lib/c.py", "main.py"}, res.Payload["results"])

	res = f.run("view_file_content", with("file_name", "a.py"))
	assert.Equal(t, "needle", res.String("content"))
}

func TestGitActions(t *testing.T) {
	f := newFixture(t)
	f.ws.Seed("demo", map[string]string{"main.py": ""})
	project := map[string]any{action.ProjectParam: "demo"}

	assert.Equal(t, models.StatusFailed, f.run("commit_changes", project).Status, "not versioned")

	require.NoError(t, f.ws.InitRepo("demo"))
	res := f.run("commit_changes", project)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, true, res.Payload[action.PayloadCommitMade])
	assert.Equal(t, models.StatusFailed, f.run("commit_changes", project).Status, "nothing to commit")

	branch := map[string]any{action.ProjectParam: "demo", "branch_name": "feature"}
	assert.Equal(t, models.StatusSuccess, f.run("create_branch", branch).Status)
	assert.Equal(t, models.StatusSuccess, f.run("switch_branch", branch).Status)

	res = f.run("view_commit_history", project)
	require.Equal(t, models.StatusSuccess, res.Status)
}

func TestRunCode(t *testing.T) {
	f := newFixture(t)
	f.ws.Seed("demo", map[string]string{"main.py": ""})
	project := map[string]any{action.ProjectParam: "demo"}

	f.runner.out = exec.Output{Stdout: "ok\n"}
	res := f.run("run_code", project)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "ok\n", res.String("output"))
	assert.Equal(t, []string{"python3", "main.py"}, f.runner.calls[0])

	f.runner.out = exec.Output{Stderr: "Traceback", ExitCode: 1}
	assert.Equal(t, models.StatusError, f.run("run_code", project).Status)

	f.runner.err = exec.ErrTimeout
	assert.Equal(t, models.StatusTimeout, f.run("run_code", project).Status)

	assert.Equal(t, models.StatusFailed, f.run("run_code", map[string]any{
		action.ProjectParam: "demo", "file_name": "missing.py",
	}).Status)
}

func TestUnitTests(t *testing.T) {
	f := newFixture(t)
	f.ws.Seed("demo", map[string]string{"test_main.py": ""})
	project := map[string]any{action.ProjectParam: "demo"}

	assert.Equal(t, models.StatusFailed, f.run("view_test_results", nil).Status)

	f.runner.out = exec.Output{Stderr: "Ran 1 test\n\nOK\n"}
	require.Equal(t, models.StatusSuccess, f.run("run_unit_tests", project).Status)

	res := f.run("view_test_results", nil)
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.String("output"), "OK")
}

func TestAnalyze(t *testing.T) {
	code := strings.Join([]string{
		"import os",
		"import sys as s",
		"for x in y:",
		"    if x:",
		"        pass",
		"class Info:",
		"    x = ''",
		"# " + strings.Repeat("x", 120),
	}, "\n")
	a := Analyze("main.py", code)

	assert.Equal(t, 8, a.Lines)
	assert.Equal(t, 2, a.Complexity, "'Info' does not count as 'if'")
	require.Len(t, a.StyleIssues, 2)
	assert.Contains(t, a.StyleIssues[0], "Line 1")
	assert.Contains(t, a.StyleIssues[1], "too long")
}
