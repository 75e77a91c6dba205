// Package handlers implements the effects of the built-in actions against a
// workspace.
package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/exec"
	"github.com/ShayCichocki/nimbus/internal/workspace"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Workspace workspace.Workspace
	Runner    exec.CommandRunner
	Logger    *zap.Logger
	// Interpreter runs project programs and tests. Defaults to python3.
	Interpreter string
	// InitGit makes start_new_project initialise a repository by default.
	InitGit bool
	Now     func() time.Time
}

// Set holds the handler implementations and the state some of them share.
type Set struct {
	Deps

	mu       sync.Mutex
	lastTest *testRun
}

type testRun struct {
	Output   string
	ExitCode int
	At       time.Time
}

// New creates the handler set, filling defaults in d.
func New(d Deps) *Set {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Interpreter == "" {
		d.Interpreter = "python3"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Set{Deps: d}
}

// Register binds every built-in handler in reg.
func (s *Set) Register(reg *action.Registry) error {
	for name, h := range s.handlers() {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) handlers() map[string]action.Handler {
	file := action.Field{Name: "file_name", Kind: action.KindString, Required: true, Description: "Project-relative file path"}
	content := action.Field{Name: "content", Kind: action.KindString, Default: "", Description: "File content"}
	dest := action.Field{Name: "destination", Kind: action.KindString, Required: true, Description: "Destination path or directory"}
	branch := action.Field{Name: "branch_name", Kind: action.KindString, Required: true, Description: "Branch name"}

	return map[string]action.Handler{
		action.StartNewProject: action.WithSchema(action.Schema{
			{Name: "project_name", Kind: action.KindString, Description: "Name of the new project"},
			{Name: "description", Kind: action.KindString, Default: "", Description: "Short project description"},
			{Name: "init_git", Kind: action.KindBool, Default: s.InitGit, Description: "Initialise a git repository"},
		}, s.startNewProject),
		action.ContinueProject: action.WithSchema(action.Schema{
			{Name: "project_name", Kind: action.KindString, Description: "Existing project to resume"},
		}, s.continueProject),
		action.ExitProject:          action.HandlerFunc(s.exitProject),
		action.ProjectRetrospective: action.HandlerFunc(s.projectRetrospective),
		"analyze_project_state":     action.HandlerFunc(s.analyzeProjectState),

		"research_and_plan": action.WithSchema(action.Schema{
			{Name: "topic", Kind: action.KindString, Default: "", Description: "Research topic"},
		}, s.researchAndPlan),
		"implement_initial_prototype": action.HandlerFunc(s.implementInitialPrototype),
		"generate_code": action.WithSchema(action.Schema{
			{Name: "file_name", Kind: action.KindString, Default: "generated_code.py", Description: "File to create"},
			{Name: "spec", Kind: action.KindString, Default: "Generate a simple Python script", Description: "What the code should do"},
		}, s.generateCode),
		"write_tests": action.WithSchema(action.Schema{
			{Name: "file_name", Kind: action.KindString, Default: "main.py", Description: "Source file to test"},
		}, s.writeTests),
		"run_code": action.WithSchema(action.Schema{
			{Name: "file_name", Kind: action.KindString, Default: "main.py", Description: "Program to run"},
		}, s.runCode),
		"analyze_code": action.WithSchema(action.Schema{
			{Name: "file_name", Kind: action.KindString, Default: "", Description: "File to analyse; empty analyses every source file"},
		}, s.analyzeCode),

		"view_files":  action.HandlerFunc(s.viewFiles),
		"create_file": action.WithSchema(action.Schema{file, content}, s.createFile),
		"edit_file": action.WithSchema(action.Schema{file,
			{Name: "content", Kind: action.KindString, Required: true, Description: "New file content"},
		}, s.editFile),
		"save_file":   action.WithSchema(action.Schema{file, content}, s.saveFile),
		"delete_file": action.WithSchema(action.Schema{file}, s.deleteFile),
		"rename_file": action.WithSchema(action.Schema{file,
			{Name: "new_name", Kind: action.KindString, Required: true, Description: "New file path"},
		}, s.renameFile),
		"move_file": action.WithSchema(action.Schema{file, dest}, s.moveFile),
		"copy_file": action.WithSchema(action.Schema{file, dest}, s.copyFile),
		"search_in_files": action.WithSchema(action.Schema{
			{Name: "search_text", Kind: action.KindString, Required: true, Description: "Text to find"},
		}, s.searchInFiles),
		"view_file_content": action.WithSchema(action.Schema{file}, s.viewFileContent),

		"commit_changes": action.WithSchema(action.Schema{
			{Name: "message", Kind: action.KindString, Default: "Update project", Description: "Commit message"},
		}, s.commitChanges),
		"create_branch": action.WithSchema(action.Schema{branch}, s.createBranch),
		"switch_branch": action.WithSchema(action.Schema{branch}, s.switchBranch),
		"view_commit_history": action.WithSchema(action.Schema{
			{Name: "limit", Kind: action.KindInt, Default: 10, Description: "Number of commits"},
		}, s.viewCommitHistory),

		"run_unit_tests":    action.HandlerFunc(s.runUnitTests),
		"view_test_results": action.HandlerFunc(s.viewTestResults),

		action.Continue: action.HandlerFunc(func(context.Context, action.Params) (models.ActionResult, error) {
			return models.Success(map[string]any{"message": "no action taken"}), nil
		}),
	}
}

// errNoProject is reported as a failed result, not a handler error.
const errNoProject = "no current project"

func currentProject(p action.Params) (string, bool) {
	name := p.String(action.ProjectParam)
	return name, name != ""
}

func affected(files ...string) map[string]any {
	return map[string]any{action.PayloadFilesAffected: files}
}

func fail(format string, args ...any) (models.ActionResult, error) {
	return models.Failure(fmt.Sprintf(format, args...)), nil
}
