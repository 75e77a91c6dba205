package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/workspace"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// fileOp runs op and maps expected workspace errors to failed results.
func fileOp(op func() error, files ...string) (models.ActionResult, error) {
	err := op()
	switch {
	case err == nil:
		return models.Success(affected(files...)), nil
	case errors.Is(err, workspace.ErrFileNotFound),
		errors.Is(err, workspace.ErrFileExists),
		errors.Is(err, workspace.ErrOutsideProject):
		return models.Failure(err.Error()), nil
	default:
		return models.ActionResult{}, err
	}
}

func (s *Set) viewFiles(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	files, err := s.Workspace.ListFiles(name)
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.Success(map[string]any{"files": files}), nil
}

func (s *Set) createFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	file := p.String("file_name")
	return fileOp(func() error {
		return s.Workspace.CreateFile(name, file, []byte(p.String("content")))
	}, file)
}

func (s *Set) editFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	file := p.String("file_name")
	return fileOp(func() error {
		return s.Workspace.ModifyFile(name, file, []byte(p.String("content")))
	}, file)
}

func (s *Set) saveFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	file := p.String("file_name")
	return fileOp(func() error {
		return s.Workspace.WriteFile(name, file, []byte(p.String("content")))
	}, file)
}

func (s *Set) deleteFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	file := p.String("file_name")
	return fileOp(func() error { return s.Workspace.DeleteFile(name, file) }, file)
}

func (s *Set) renameFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	from, to := p.String("file_name"), p.String("new_name")
	return fileOp(func() error { return s.Workspace.RenameFile(name, from, to) }, from, to)
}

func (s *Set) moveFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	file, dir := p.String("file_name"), p.String("destination")
	return fileOp(func() error { return s.Workspace.MoveFile(name, file, dir) }, file)
}

func (s *Set) copyFile(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	src, dst := p.String("file_name"), p.String("destination")
	return fileOp(func() error { return s.Workspace.CopyFile(name, src, dst) }, dst)
}

func (s *Set) searchInFiles(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	files, err := s.Workspace.ListFiles(name)
	if err != nil {
		return models.ActionResult{}, err
	}
	needle := p.String("search_text")
	results := []string{}
	for _, f := range files {
		data, err := s.Workspace.ReadFile(name, f)
		if err != nil {
			return models.ActionResult{}, err
		}
		if strings.Contains(string(data), needle) {
			results = append(results, f)
		}
	}
	return models.Success(map[string]any{"results": results}), nil
}

func (s *Set) viewFileContent(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	file := p.String("file_name")
	data, err := s.Workspace.ReadFile(name, file)
	if errors.Is(err, workspace.ErrFileNotFound) {
		return fail("file %s not found", file)
	}
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.Success(map[string]any{"file_name": file, "content": string(data)}), nil
}
