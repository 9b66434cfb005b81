package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/relaydesk/internal/delivery"
)

// PreviewRequest is the request body for POST /api/templates/{templateID}/preview
type PreviewRequest struct {
	Variables map[string]string `json:"variables"`
}

// TriggerURLRequest is the request body for POST /api/templates/{templateID}/trigger-url
type TriggerURLRequest struct {
	Email     string            `json:"email"`
	Variables map[string]string `json:"variables"`
}

// TriggerURLResponse is the response for POST /api/templates/{templateID}/trigger-url
type TriggerURLResponse struct {
	URL string `json:"url"`
}

// handleTemplatePreview handles POST /api/templates/{templateID}/preview
func (s *Server) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	preview, err := s.deps.Delivery.Preview(r.Context(), userID(r), chi.URLParam(r, "templateID"), req.Variables)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, preview)
}

// handleTemplateTriggerURL handles POST /api/templates/{templateID}/trigger-url
func (s *Server) handleTemplateTriggerURL(w http.ResponseWriter, r *http.Request) {
	var req TriggerURLRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	u, err := s.deps.Delivery.TriggerURL(r.Context(), userID(r), chi.URLParam(r, "templateID"), req.Email, req.Variables)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, TriggerURLResponse{URL: u})
}

// handleSend handles POST /api/email/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var in delivery.SendInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	out, err := s.deps.Delivery.Send(r.Context(), userID(r), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, out)
}
