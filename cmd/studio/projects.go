package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vyvo/apkforge/backend/pkg/builder"
	"github.com/vyvo/apkforge/backend/pkg/projects"
)

const uploadField = "files"

// respondProjectError maps project store errors to statuses.
func (s *server) respondProjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, projects.ErrProjectNotFound), errors.Is(err, projects.ErrFileNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, projects.ErrInvalid), errors.Is(err, projects.ErrUnsupportedType):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("project store error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.projects.ListProjects(), http.StatusOK)
}

func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var input projects.CreateProjectInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	project, err := s.projects.CreateProject(input)
	if err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, project, http.StatusCreated)
}

func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetProject(chi.URLParam(r, "projectID"))
	if err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, project, http.StatusOK)
}

func (s *server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch projects.ProjectPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	project, err := s.projects.UpdateProject(chi.URLParam(r, "projectID"), patch)
	if err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, project, http.StatusOK)
}

// handleDeleteProject removes the project, its files, its pending build steps
// and its build record.
func (s *server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := s.projects.DeleteProject(projectID); err != nil {
		s.respondProjectError(w, err)
		return
	}

	s.driver.Cancel(projectID)
	if err := s.driver.Store().Delete(context.WithoutCancel(r.Context()), projectID); err != nil && !errors.Is(err, builder.ErrNotFound) {
		s.logger.Warn("delete build record failed", zap.String("project_id", projectID), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if _, err := s.projects.GetProject(projectID); err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, s.projects.ListFiles(projectID), http.StatusOK)
}

func (s *server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var input projects.CreateFileInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	input.ProjectID = chi.URLParam(r, "projectID")
	if input.Type == "" {
		input.Type = projects.DetectType(input.Name)
	}
	file, err := s.projects.CreateFile(input)
	if err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, file, http.StatusCreated)
}

// handleUploadFiles stores every part of the multipart field "files". The
// whole upload is rejected if any part has a disallowed extension or is too large.
func (s *server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if _, err := s.projects.GetProject(projectID); err != nil {
		s.respondProjectError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 4*projects.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	for _, fh := range headers {
		if err := projects.AllowedUpload(fh.Filename); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
			return
		}
		if fh.Size > projects.MaxUploadSize {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: file exceeds %d bytes", fh.Filename, projects.MaxUploadSize))
			return
		}
	}

	created := make([]projects.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: unreadable upload", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: unreadable upload", fh.Filename))
			return
		}

		file, err := s.projects.CreateFile(projects.CreateFileInput{
			ProjectID: projectID,
			Name:      fh.Filename,
			Content:   projects.UploadContent(fh.Filename, data),
			Type:      projects.DetectType(fh.Filename),
			Size:      int64(len(data)),
		})
		if err != nil {
			s.respondProjectError(w, err)
			return
		}
		created = append(created, file)
	}

	s.logger.Info("files uploaded", zap.String("project_id", projectID), zap.Int("count", len(created)))
	respondJSON(w, created, http.StatusCreated)
}

func (s *server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.projects.GetFile(chi.URLParam(r, "fileID"))
	if err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, file, http.StatusOK)
}

func (s *server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	var patch projects.FilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	file, err := s.projects.UpdateFile(chi.URLParam(r, "fileID"), patch)
	if err != nil {
		s.respondProjectError(w, err)
		return
	}
	respondJSON(w, file, http.StatusOK)
}

func (s *server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteFile(chi.URLParam(r, "fileID")); err != nil {
		s.respondProjectError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
