// Package workspace manages project directories and their files.
package workspace

import (
	"errors"

	"github.com/ShayCichocki/nimbus/internal/git"
)

var (
	// ErrProjectNotFound is returned for operations on a missing project.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectExists is returned when creating a project that exists.
	ErrProjectExists = errors.New("project already exists")
	// ErrFileNotFound is returned for operations on a missing file.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileExists is returned when creating a file that exists.
	ErrFileExists = errors.New("file already exists")
	// ErrOutsideProject is returned for paths that escape the project root.
	ErrOutsideProject = errors.New("path escapes project directory")
)

// Files defines file operations within one project. Names are relative,
// slash-separated paths.
type Files interface {
	ListFiles(project string) ([]string, error)
	FileExists(project, name string) bool
	CreateFile(project, name string, content []byte) error
	ReadFile(project, name string) ([]byte, error)
	ModifyFile(project, name string, content []byte) error
	WriteFile(project, name string, content []byte) error
	DeleteFile(project, name string) error
	RenameFile(project, oldName, newName string) error
	MoveFile(project, name, dir string) error
	CopyFile(project, src, dst string) error
}

// Projects defines project directory operations.
type Projects interface {
	ListProjects() ([]string, error)
	CreateProject(name string) (string, error)
	ProjectExists(name string) bool
	ProjectPath(name string) string
}

// VersionControl defines git operations on a project.
type VersionControl interface {
	IsVersioned(project string) bool
	InitRepo(project string) error
	Commit(project, message string) (string, error)
	CreateBranch(project, name string) error
	SwitchBranch(project, name string) error
	Log(project string, limit int) ([]git.Commit, error)
}

// Workspace is the complete project collaborator used by handlers and the
// orchestrator.
type Workspace interface {
	Files
	Projects
	VersionControl
}
