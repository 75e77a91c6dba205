package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/nimbus/internal/git"
)

// FS is a Workspace backed by a directory on disk. Each project is a
// subdirectory of Root.
type FS struct {
	Root string
}

// NewFS creates the root directory if needed and returns a workspace on it.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &FS{Root: abs}, nil
}

// ProjectPath returns the absolute directory of a project.
func (w *FS) ProjectPath(name string) string {
	return filepath.Join(w.Root, name)
}

// ProjectExists reports whether the project directory exists.
func (w *FS) ProjectExists(name string) bool {
	if !validName(name) {
		return false
	}
	info, err := os.Stat(w.ProjectPath(name))
	return err == nil && info.IsDir()
}

// ListProjects returns project names, sorted.
func (w *FS) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// CreateProject creates the project directory.
func (w *FS) CreateProject(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("create project %q: invalid name", name)
	}
	dir := w.ProjectPath(name)
	if w.ProjectExists(name) {
		return "", fmt.Errorf("create project %s: %w", name, ErrProjectExists)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create project %s: %w", name, err)
	}
	return dir, nil
}

// ListFiles returns the project's files as sorted slash-separated paths.
// The .git directory is skipped.
func (w *FS) ListFiles(project string) ([]string, error) {
	if !w.ProjectExists(project) {
		return nil, fmt.Errorf("list files in %s: %w", project, ErrProjectNotFound)
	}
	root := w.ProjectPath(project)
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files in %s: %w", project, err)
	}
	sort.Strings(files)
	return files, nil
}

// FileExists reports whether a regular file exists in the project.
func (w *FS) FileExists(project, name string) bool {
	p, err := w.resolve(project, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// CreateFile creates a new file, failing if it exists.
func (w *FS) CreateFile(project, name string, content []byte) error {
	p, err := w.resolve(project, name)
	if err != nil {
		return err
	}
	if w.FileExists(project, name) {
		return fmt.Errorf("create %s: %w", name, ErrFileExists)
	}
	return writeFile(p, content)
}

// ReadFile returns a file's content.
func (w *FS) ReadFile(project, name string) ([]byte, error) {
	p, err := w.resolve(project, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", name, ErrFileNotFound)
	}
	return data, err
}

// ModifyFile replaces the content of an existing file.
func (w *FS) ModifyFile(project, name string, content []byte) error {
	p, err := w.resolve(project, name)
	if err != nil {
		return err
	}
	if !w.FileExists(project, name) {
		return fmt.Errorf("modify %s: %w", name, ErrFileNotFound)
	}
	return writeFile(p, content)
}

// WriteFile creates or replaces a file.
func (w *FS) WriteFile(project, name string, content []byte) error {
	p, err := w.resolve(project, name)
	if err != nil {
		return err
	}
	return writeFile(p, content)
}

// DeleteFile removes a file.
func (w *FS) DeleteFile(project, name string) error {
	p, err := w.resolve(project, name)
	if err != nil {
		return err
	}
	if !w.FileExists(project, name) {
		return fmt.Errorf("delete %s: %w", name, ErrFileNotFound)
	}
	return os.Remove(p)
}

// RenameFile renames a file, creating the destination directory.
func (w *FS) RenameFile(project, oldName, newName string) error {
	src, err := w.resolve(project, oldName)
	if err != nil {
		return err
	}
	dst, err := w.resolve(project, newName)
	if err != nil {
		return err
	}
	if !w.FileExists(project, oldName) {
		return fmt.Errorf("rename %s: %w", oldName, ErrFileNotFound)
	}
	if w.FileExists(project, newName) {
		return fmt.Errorf("rename to %s: %w", newName, ErrFileExists)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// MoveFile moves a file into dir, keeping its base name.
func (w *FS) MoveFile(project, name, dir string) error {
	return w.RenameFile(project, name, path.Join(dir, path.Base(name)))
}

// CopyFile copies src to dst, failing if dst exists.
func (w *FS) CopyFile(project, src, dst string) error {
	from, err := w.resolve(project, src)
	if err != nil {
		return err
	}
	to, err := w.resolve(project, dst)
	if err != nil {
		return err
	}
	if w.FileExists(project, dst) {
		return fmt.Errorf("copy to %s: %w", dst, ErrFileExists)
	}
	in, err := os.Open(from)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("copy %s: %w", src, ErrFileNotFound)
	}
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	out, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// IsVersioned reports whether the project is a git repository.
func (w *FS) IsVersioned(project string) bool {
	return w.ProjectExists(project) && git.IsRepository(w.ProjectPath(project))
}

// InitRepo initialises a git repository in the project.
func (w *FS) InitRepo(project string) error {
	if !w.ProjectExists(project) {
		return fmt.Errorf("init repo %s: %w", project, ErrProjectNotFound)
	}
	_, err := git.Init(w.ProjectPath(project))
	return err
}

// Commit stages and commits every change in the project.
func (w *FS) Commit(project, message string) (string, error) {
	repo, err := w.repo(project)
	if err != nil {
		return "", err
	}
	return repo.CommitAll(message)
}

// CreateBranch creates a branch at HEAD.
func (w *FS) CreateBranch(project, name string) error {
	repo, err := w.repo(project)
	if err != nil {
		return err
	}
	return repo.CreateBranch(name)
}

// SwitchBranch checks out a branch.
func (w *FS) SwitchBranch(project, name string) error {
	repo, err := w.repo(project)
	if err != nil {
		return err
	}
	return repo.CheckoutBranch(name)
}

// Log returns recent commits, newest first.
func (w *FS) Log(project string, limit int) ([]git.Commit, error) {
	repo, err := w.repo(project)
	if err != nil {
		return nil, err
	}
	return repo.Log(limit)
}

func (w *FS) repo(project string) (*git.Repo, error) {
	if !w.ProjectExists(project) {
		return nil, fmt.Errorf("open repo %s: %w", project, ErrProjectNotFound)
	}
	return git.Open(w.ProjectPath(project))
}

func (w *FS) resolve(project, name string) (string, error) {
	if !w.ProjectExists(project) {
		return "", fmt.Errorf("%s: %w", project, ErrProjectNotFound)
	}
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.ProjectPath(project), filepath.FromSlash(clean)), nil
}

func writeFile(p string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.WriteFile(p, content, 0644)
}

// cleanName normalises a project-relative path and rejects escapes.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name: %w", ErrOutsideProject)
	}
	clean := path.Clean(filepath.ToSlash(name))
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%s: %w", name, ErrOutsideProject)
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return "", fmt.Errorf("%s: %w", name, ErrOutsideProject)
	}
	return clean, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

var _ Workspace = (*FS)(nil)
