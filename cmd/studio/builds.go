package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vyvo/apkforge/backend/pkg/builder"
)

func (s *server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	rec, err := s.driver.Start(r.Context(), projectID)
	if err != nil {
		s.logger.Error("start build failed", zap.String("project_id", projectID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to start build")
		return
	}
	respondJSON(w, rec, http.StatusOK)
}

func (s *server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	rec, err := s.driver.Store().Get(r.Context(), projectID)
	if err != nil {
		s.respondBuildError(w, projectID, err)
		return
	}
	respondJSON(w, rec, http.StatusOK)
}

func (s *server) respondBuildError(w http.ResponseWriter, projectID string, err error) {
	if errors.Is(err, builder.ErrNotFound) {
		respondError(w, http.StatusNotFound, builder.ErrNotFound.Error())
		return
	}
	s.logger.Error("read build failed", zap.String("project_id", projectID), zap.Error(err))
	respondError(w, http.StatusInternalServerError, "failed to read build")
}

// handleStreamBuild sends the current record and then every snapshot of the
// project's runs until one finishes or the client goes away.
func (s *server) handleStreamBuild(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	ctx := r.Context()

	// subscribe before reading so no snapshot falls between the two
	ch, cancel := s.driver.Hub().Subscribe(projectID)
	defer cancel()

	rec, err := s.driver.Store().Get(ctx, projectID)
	if err != nil {
		s.respondBuildError(w, projectID, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	last := rec
	if err := writeEvent(w, rec); err != nil {
		return
	}
	flusher.Flush()
	if rec.Terminal() || !s.driver.Active(projectID) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				// the run ended; the final snapshot may have been dropped for a slow reader
				final, err := s.driver.Store().Get(ctx, projectID)
				if err == nil && newer(final, last) {
					_ = writeEvent(w, final)
					flusher.Flush()
				}
				return
			}
			if !newer(snap, last) {
				continue
			}
			last = snap
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
			if snap.Terminal() {
				return
			}
		}
	}
}

func newer(a, b builder.Record) bool {
	if a.Generation != b.Generation {
		return a.Generation > b.Generation
	}
	return a.UpdatedAt.After(b.UpdatedAt) || a.Progress > b.Progress || (a.Terminal() && !b.Terminal())
}

func writeEvent(w http.ResponseWriter, rec builder.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: build\ndata: %s\n\n", data)
	return err
}
