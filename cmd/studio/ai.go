package main

import (
	"errors"
	"net/http"

	"github.com/vyvo/apkforge/backend/pkg/assistant"
	"github.com/vyvo/apkforge/backend/pkg/projects"
)

func (s *server) respondAssistantError(w http.ResponseWriter, err error) {
	var perr *assistant.ProviderError
	switch {
	case errors.As(err, &perr):
		respondError(w, http.StatusBadGateway, perr.Error())
	case errors.Is(err, assistant.ErrInvalidRequest),
		errors.Is(err, assistant.ErrUnknownProvider),
		errors.Is(err, assistant.ErrMissingAPIKey),
		errors.Is(err, assistant.ErrMissingEndpoint),
		errors.Is(err, assistant.ErrUnknownAction),
		errors.Is(err, assistant.ErrImageUnsupported),
		errors.Is(err, projects.ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, projects.ErrProjectNotFound), errors.Is(err, projects.ErrFileNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusBadGateway, "Failed to process AI request: "+err.Error())
	}
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req assistant.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := s.assistant.Ask(r.Context(), req)
	if err != nil {
		s.respondAssistantError(w, err)
		return
	}
	respondJSON(w, resp, http.StatusOK)
}

func (s *server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req assistant.EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := s.assistant.Edit(r.Context(), req)
	if err != nil {
		s.respondAssistantError(w, err)
		return
	}
	respondJSON(w, resp, http.StatusOK)
}
