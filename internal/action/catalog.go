package action

import "github.com/ShayCichocki/nimbus/pkg/models"

// Well-known action names used by the lifecycle.
const (
	StartNewProject      = "start_new_project"
	ContinueProject      = "continue_project"
	ExitProject          = "exit_project"
	ProjectRetrospective = "project_retrospective"
	Continue             = "continue"
)

// Catalog is the static, ordered list of actions. Order breaks scoring ties.
type Catalog struct {
	entries []models.ActionDescriptor
	index   map[string]int
}

// NewCatalog builds a catalog from entries. Later duplicates are ignored.
func NewCatalog(entries []models.ActionDescriptor) *Catalog {
	c := &Catalog{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := c.index[e.Name]; dup {
			continue
		}
		c.index[e.Name] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// Lookup returns the descriptor for name.
func (c *Catalog) Lookup(name string) (models.ActionDescriptor, bool) {
	i, ok := c.index[name]
	if !ok {
		return models.ActionDescriptor{}, false
	}
	return c.entries[i], true
}

// Contains reports whether name is in the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Position returns the catalog order of name, or -1.
func (c *Catalog) Position(name string) int {
	i, ok := c.index[name]
	if !ok {
		return -1
	}
	return i
}

// All returns every descriptor in catalog order.
func (c *Catalog) All() []models.ActionDescriptor {
	return append([]models.ActionDescriptor(nil), c.entries...)
}

// Select returns the descriptors for names that exist in the catalog,
// in catalog order.
func (c *Catalog) Select(names []string) []models.ActionDescriptor {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []models.ActionDescriptor
	for _, e := range c.entries {
		if want[e.Name] {
			out = append(out, e)
		}
	}
	return out
}

// DefaultCatalog returns the built-in action catalog.
func DefaultCatalog() *Catalog {
	pm := models.CategoryProjectManagement
	cd := models.CategoryCodeDevelopment
	fm := models.CategoryFileManagement
	git := models.CategoryGit
	tst := models.CategoryTesting

	return NewCatalog([]models.ActionDescriptor{
		{Name: StartNewProject, Category: pm, Description: "Start a new project and scaffold its files."},
		{Name: ContinueProject, Category: pm, Description: "Resume work on an existing project."},
		{Name: ExitProject, Category: pm, Description: "Exit the current project."},
		{Name: ProjectRetrospective, Category: pm, Description: "Summarise the project and close it."},
		{Name: "analyze_project_state", Category: pm, Description: "Report the project's files, stage and metrics."},

		{Name: "research_and_plan", Category: cd, Description: "Write the research and planning document."},
		{Name: "implement_initial_prototype", Category: cd, Description: "Write the initial main program."},
		{Name: "generate_code", Category: cd, Description: "Generate a new source file."},
		{Name: "write_tests", Category: cd, Description: "Write a test file for a source file."},
		{Name: "run_code", Category: cd, Description: "Run a source file and capture its output."},
		{Name: "analyze_code", Category: cd, Description: "Analyse source files and write a report."},

		{Name: "view_files", Category: fm, Description: "List the project's files."},
		{Name: "create_file", Category: fm, Description: "Create a file with optional content."},
		{Name: "edit_file", Category: fm, Description: "Replace the content of a file."},
		{Name: "save_file", Category: fm, Description: "Write content to a file, creating it if needed."},
		{Name: "delete_file", Category: fm, Description: "Delete a file."},
		{Name: "rename_file", Category: fm, Description: "Rename a file."},
		{Name: "move_file", Category: fm, Description: "Move a file to another directory."},
		{Name: "copy_file", Category: fm, Description: "Copy a file."},
		{Name: "search_in_files", Category: fm, Description: "Search project files for text."},
		{Name: "view_file_content", Category: fm, Description: "Read a file."},

		{Name: "commit_changes", Category: git, Description: "Commit all changes in the project repository."},
		{Name: "create_branch", Category: git, Description: "Create a branch."},
		{Name: "switch_branch", Category: git, Description: "Check out a branch."},
		{Name: "view_commit_history", Category: git, Description: "List recent commits."},

		{Name: "run_unit_tests", Category: tst, Description: "Run the project's unit tests."},
		{Name: "view_test_results", Category: tst, Description: "Show the last unit test run."},

		{Name: Continue, Category: models.CategoryDefault, Description: "Do nothing this iteration."},
	})
}

// ProjectParam is the reserved detail carrying the active project name.
const ProjectParam = "project"

// Payload keys read by the orchestrator to build event context.
const (
	PayloadFilesAffected = "files_affected"
	PayloadTestsWritten  = "tests_written"
	PayloadCommitMade    = "commit_made"
	PayloadProject       = "project"
)
