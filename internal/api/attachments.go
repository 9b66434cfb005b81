package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/relaydesk/internal/attachment"
	"github.com/foxzi/relaydesk/internal/models"
)

// UploadResponse is the response for POST /api/attachments/upload
type UploadResponse struct {
	Success     bool                 `json:"success"`
	Attachments []models.Attachment  `json:"attachments"`
	Failed      []attachment.Failure `json:"failed,omitempty"`
}

// ownsProject checks that the current user owns the project and writes
// the error response when not.
func (s *Server) ownsProject(w http.ResponseWriter, r *http.Request, projectID string) bool {
	if _, err := s.deps.Catalog.GetProject(r.Context(), userID(r), projectID); err != nil {
		s.sendServiceError(w, r, err)
		return false
	}
	return true
}

// loadAttachment returns the attachment when it belongs to a project of
// the current user.
func (s *Server) loadAttachment(w http.ResponseWriter, r *http.Request) (*models.Attachment, bool) {
	a, err := s.deps.Attachments.Get(r.Context(), chi.URLParam(r, "attachmentID"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return nil, false
	}
	if !s.ownsProject(w, r, a.ProjectID) {
		return nil, false
	}
	return a, true
}

// handleAttachmentsUpload handles POST /api/attachments/upload
func (s *Server) handleAttachmentsUpload(w http.ResponseWriter, r *http.Request) {
	opts := s.deps.Attachments.Options()
	limit := int64(opts.MaxFiles)*opts.MaxFileSize + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the allowed size")
			return
		}
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	projectID := strings.TrimSpace(r.FormValue("projectId"))
	if projectID == "" {
		s.sendError(w, http.StatusBadRequest, "projectId is required")
		return
	}
	if !s.ownsProject(w, r, projectID) {
		return
	}

	headers := r.MultipartForm.File["files"]
	files := make([]attachment.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		files = append(files, attachment.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	result, err := s.deps.Attachments.Upload(r.Context(), projectID, files)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, UploadResponse{
		Success:     len(result.Uploaded) > 0,
		Attachments: result.Uploaded,
		Failed:      result.Failed,
	})
}

// handleAttachmentsList handles GET /api/projects/{projectID}/attachments
func (s *Server) handleAttachmentsList(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !s.ownsProject(w, r, projectID) {
		return
	}

	list, err := s.deps.Attachments.ListByProject(r.Context(), projectID)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Attachment{}
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleAttachmentsGet handles GET /api/attachments/{attachmentID}
func (s *Server) handleAttachmentsGet(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAttachment(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, a)
}

// handleAttachmentsDownload handles GET /api/attachments/{attachmentID}/download
func (s *Server) handleAttachmentsDownload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.loadAttachment(w, r); !ok {
		return
	}

	a, data, err := s.deps.Attachments.Download(r.Context(), chi.URLParam(r, "attachmentID"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write attachment", "id", a.ID, "error", err)
	}
}

// handleAttachmentsDelete handles DELETE /api/attachments/{attachmentID}
func (s *Server) handleAttachmentsDelete(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAttachment(w, r)
	if !ok {
		return
	}

	if err := s.deps.Attachments.Delete(r.Context(), a.ID); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
