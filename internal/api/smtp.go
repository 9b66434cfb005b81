package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/relaydesk/internal/smtpconfig"
)

// SMTPTestRequest is the request body for POST /api/smtp-config/{projectID}/test
type SMTPTestRequest struct {
	To string `json:"to"`
}

// handleSMTPConfigGet handles GET /api/smtp-config/{projectID}
func (s *Server) handleSMTPConfigGet(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !s.ownsProject(w, r, projectID) {
		return
	}

	cfg, err := s.deps.SMTP.GetSafe(r.Context(), projectID)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, cfg)
}

// handleSMTPConfigSet handles POST /api/smtp-config/{projectID}
func (s *Server) handleSMTPConfigSet(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !s.ownsProject(w, r, projectID) {
		return
	}

	var fields smtpconfig.Fields
	if !s.decodeJSON(w, r, &fields) {
		return
	}

	cfg, err := s.deps.SMTP.Set(r.Context(), projectID, fields)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, cfg)
}

// handleSMTPConfigDelete handles DELETE /api/smtp-config/{projectID}
func (s *Server) handleSMTPConfigDelete(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !s.ownsProject(w, r, projectID) {
		return
	}

	if err := s.deps.SMTP.Delete(r.Context(), projectID); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSMTPConfigTest handles POST /api/smtp-config/{projectID}/test
func (s *Server) handleSMTPConfigTest(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !s.ownsProject(w, r, projectID) {
		return
	}

	var req SMTPTestRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if !s.allowSend(w, r, projectID) {
		return
	}

	result, err := s.deps.SMTP.Test(r.Context(), projectID, req.To)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}
