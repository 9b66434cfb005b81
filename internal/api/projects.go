package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/relaydesk/internal/catalog"
	"github.com/foxzi/relaydesk/internal/models"
)

// ProjectResponse is the response for GET /api/projects/{projectID}
type ProjectResponse struct {
	*models.Project
	SMTPConfigured bool `json:"smtp_configured"`
}

// handleProjectsList handles GET /api/projects
func (s *Server) handleProjectsList(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Catalog.ListProjects(r.Context(), userID(r))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, projects)
}

// handleProjectsCreate handles POST /api/projects
func (s *Server) handleProjectsCreate(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProjectInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	p, err := s.deps.Catalog.CreateProject(r.Context(), userID(r), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, p)
}

// handleProjectsGet handles GET /api/projects/{projectID}
func (s *Server) handleProjectsGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Catalog.GetProject(r.Context(), userID(r), chi.URLParam(r, "projectID"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	configured, err := s.deps.SMTP.Configured(r.Context(), p.ID)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ProjectResponse{Project: p, SMTPConfigured: configured})
}

// handleProjectsUpdate handles PUT /api/projects/{projectID}
func (s *Server) handleProjectsUpdate(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProjectInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	p, err := s.deps.Catalog.UpdateProject(r.Context(), userID(r), chi.URLParam(r, "projectID"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, p)
}

// handleProjectsDelete handles DELETE /api/projects/{projectID}
func (s *Server) handleProjectsDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.DeleteProject(r.Context(), userID(r), chi.URLParam(r, "projectID")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTemplatesList handles GET /api/projects/{projectID}/templates
func (s *Server) handleTemplatesList(w http.ResponseWriter, r *http.Request) {
	filter := models.TemplateListFilter{
		ProjectID: chi.URLParam(r, "projectID"),
		Search:    r.URL.Query().Get("search"),
		Type:      r.URL.Query().Get("type"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	templates, err := s.deps.Catalog.ListTemplates(r.Context(), userID(r), filter)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, templates)
}

// handleTemplatesCreate handles POST /api/projects/{projectID}/templates
func (s *Server) handleTemplatesCreate(w http.ResponseWriter, r *http.Request) {
	var in catalog.TemplateInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	t, err := s.deps.Catalog.CreateTemplate(r.Context(), userID(r), chi.URLParam(r, "projectID"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, t)
}

// handleTemplatesGet handles GET /api/templates/{templateID}
func (s *Server) handleTemplatesGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Catalog.GetTemplate(r.Context(), userID(r), chi.URLParam(r, "templateID"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handleTemplatesUpdate handles PUT /api/templates/{templateID}
func (s *Server) handleTemplatesUpdate(w http.ResponseWriter, r *http.Request) {
	var in catalog.TemplateInput
	if !s.decodeJSON(w, r, &in) {
		return
	}

	t, err := s.deps.Catalog.UpdateTemplate(r.Context(), userID(r), chi.URLParam(r, "templateID"), in)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handleTemplatesDelete handles DELETE /api/templates/{templateID}
func (s *Server) handleTemplatesDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.DeleteTemplate(r.Context(), userID(r), chi.URLParam(r, "templateID")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
