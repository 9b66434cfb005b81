// Package attachment manages uploaded files: batch upload with
// continue-on-error semantics, metadata lookup, download and best-effort
// resolution into inline relay attachments.
package attachment

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/blob"
	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/relay"
)

// Repository persists attachment metadata. GetByID returns nil, nil when
// the attachment does not exist.
type Repository interface {
	Create(ctx context.Context, a *models.Attachment) error
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error)
	Delete(ctx context.Context, id string) error
}

// Projects resolves project existence.
type Projects interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
}

// Fetcher downloads bytes for attachments stored behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Drop reasons reported in metrics and logs.
const (
	DropNotFound        = "not_found"
	DropFetchError      = "fetch_error"
	DropSizeMismatch    = "size_mismatch"
	DropProjectMismatch = "project_mismatch"
	DropInvalid         = "invalid"
)

// Options are the upload and resolution limits.
type Options struct {
	MaxFiles           int
	MaxFileSize        int64
	FetchTimeout       time.Duration
	ResolveConcurrency int
}

// DefaultOptions returns 5 files of 10 MiB each.
func DefaultOptions() Options {
	return Options{
		MaxFiles:           5,
		MaxFileSize:        10 * 1024 * 1024,
		FetchTimeout:       15 * time.Second,
		ResolveConcurrency: 4,
	}
}

// File is one uploaded file.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Failure describes a file that could not be stored.
type Failure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResult aggregates per-file outcomes of a batch upload.
type UploadResult struct {
	Uploaded []models.Attachment `json:"attachments"`
	Failed   []Failure           `json:"failed,omitempty"`
}

// outcome is the result of storing a single file.
type outcome struct {
	filename   string
	attachment *models.Attachment
	err        error
}

// Service implements attachment operations. A nil blob store keeps bytes
// inline in the metadata record.
type Service struct {
	repo     Repository
	projects Projects
	store    blob.Store
	fetcher  Fetcher
	opts     Options
	logger   *slog.Logger
}

// NewService creates an attachment service.
func NewService(repo Repository, projects Projects, store blob.Store, fetcher Fetcher, opts Options, logger *slog.Logger) *Service {
	def := DefaultOptions()
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = def.MaxFileSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.ResolveConcurrency <= 0 {
		opts.ResolveConcurrency = def.ResolveConcurrency
	}
	if fetcher == nil {
		fetcher = blob.NewFetcher(opts.FetchTimeout, opts.MaxFileSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		projects: projects,
		store:    store,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
	}
}

// Options returns the effective limits.
func (s *Service) Options() Options {
	return s.opts
}

// Upload stores files for a project. The batch is rejected as a whole when
// it breaks the count or size limits; otherwise every file is stored
// independently and failures are reported per file.
func (s *Service) Upload(ctx context.Context, projectID string, files []File) (*UploadResult, error) {
	if err := s.validateBatch(files); err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return nil, apperr.NotFound("project", projectID)
	}

	outcomes := make([]outcome, 0, len(files))
	for _, f := range files {
		a, err := s.storeFile(ctx, projectID, f)
		outcomes = append(outcomes, outcome{filename: f.Filename, attachment: a, err: err})
	}

	return s.aggregate(projectID, outcomes), nil
}

func (s *Service) validateBatch(files []File) error {
	if len(files) == 0 {
		return apperr.Validation("no files uploaded")
	}
	if len(files) > s.opts.MaxFiles {
		return apperr.Validation("maximum %d files allowed", s.opts.MaxFiles)
	}
	for _, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			return apperr.Validation("file name is required")
		}
		if len(f.Data) == 0 {
			return apperr.Validation("file %s is empty", f.Filename)
		}
		if int64(len(f.Data)) > s.opts.MaxFileSize {
			return apperr.Validation("file %s exceeds maximum size of %s", f.Filename, humanSize(s.opts.MaxFileSize))
		}
	}
	return nil
}

// storeFile stores a single file and its metadata.
func (s *Service) storeFile(ctx context.Context, projectID string, f File) (*models.Attachment, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	a := &models.Attachment{
		ID:          id,
		ProjectID:   projectID,
		Filename:    f.Filename,
		ContentType: contentType,
		Size:        int64(len(f.Data)),
		UploadedAt:  time.Now(),
	}

	if s.store == nil {
		a.Content = f.Data
	} else {
		key := blob.AttachmentKey(projectID, id)
		if err := s.store.Put(ctx, key, contentType, f.Data); err != nil {
			return nil, err
		}
		a.StoragePath = key
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if a.StoragePath != "" {
			if derr := s.store.Delete(ctx, a.StoragePath); derr != nil {
				s.logger.Warn("failed to remove orphaned blob", "key", a.StoragePath, "error", derr)
			}
		}
		return nil, err
	}

	a.Content = nil
	return a, nil
}

func (s *Service) aggregate(projectID string, outcomes []outcome) *UploadResult {
	result := &UploadResult{Uploaded: []models.Attachment{}}
	for _, o := range outcomes {
		if o.err != nil {
			metrics.IncAttachmentsUploaded("error")
			s.logger.Warn("attachment upload failed",
				"project_id", projectID,
				"filename", o.filename,
				"error", o.err,
			)
			result.Failed = append(result.Failed, Failure{Filename: o.filename, Error: o.err.Error()})
			continue
		}
		metrics.IncAttachmentsUploaded("ok")
		result.Uploaded = append(result.Uploaded, *o.attachment)
	}

	s.logger.Info("attachments uploaded",
		"project_id", projectID,
		"uploaded", len(result.Uploaded),
		"failed", len(result.Failed),
	)
	return result
}

// Get returns attachment metadata without content.
func (s *Service) Get(ctx context.Context, id string) (*models.Attachment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachment: %w", err)
	}
	if a == nil {
		return nil, apperr.NotFound("attachment", id)
	}
	a.Content = nil
	return a, nil
}

// ListByProject returns a project's attachments without content.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// Download returns metadata and raw bytes.
func (s *Service) Download(ctx context.Context, id string) (*models.Attachment, []byte, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attachment: %w", err)
	}
	if a == nil {
		return nil, nil, apperr.NotFound("attachment", id)
	}

	data, err := s.content(ctx, a)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, apperr.NotFound("attachment content", id)
		}
		return nil, nil, err
	}
	a.Content = nil
	return a, data, nil
}

// Delete removes the metadata and the stored blob. Templates still
// referencing the id drop it at send time.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load attachment: %w", err)
	}
	if a == nil {
		return apperr.NotFound("attachment", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if a.StoragePath != "" && s.store != nil {
		if err := s.store.Delete(ctx, a.StoragePath); err != nil {
			s.logger.Warn("failed to delete attachment blob", "id", id, "key", a.StoragePath, "error", err)
		}
	}

	s.logger.Info("attachment deleted", "id", id, "project_id", a.ProjectID)
	return nil
}

// content loads the raw bytes of an attachment from wherever they live.
func (s *Service) content(ctx context.Context, a *models.Attachment) ([]byte, error) {
	switch {
	case a.Inline():
		return a.Content, nil
	case a.StoragePath != "" && s.store != nil:
		ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		return s.store.Get(ctx, a.StoragePath)
	case a.DownloadURL != "":
		ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		return s.fetcher.Fetch(ctx, a.DownloadURL)
	default:
		return nil, fmt.Errorf("%w: attachment %s has no content", blob.ErrNotFound, a.ID)
	}
}

// NewID returns "<unix millis>_<9 base36 chars>".
func NewID() (string, error) {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	const suffixLen = 9

	var sb strings.Builder
	sb.Grow(suffixLen)
	base := big.NewInt(int64(len(alphabet)))
	for range suffixLen {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("failed to generate attachment id: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), sb.String()), nil
}

func humanSize(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// Resolve turns references into inline relay attachments. Every reference
// is normalized through the metadata store by id. Units that fail are
// dropped with a warning; order is preserved for the rest. projectID, when
// set, drops attachments owned by another project.
func (s *Service) Resolve(ctx context.Context, projectID string, refs []models.AttachmentRef) []relay.Attachment {
	if len(refs) == 0 {
		return nil
	}

	slots := make([]*relay.Attachment, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ResolveConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			a, reason, err := s.resolveOne(gctx, projectID, ref)
			if err != nil {
				metrics.IncAttachmentsDropped(reason)
				s.logger.Warn("attachment dropped",
					"attachment_id", ref.RefID(),
					"reason", reason,
					"error", err,
				)
				return nil
			}
			slots[i] = a
			return nil
		})
	}
	_ = g.Wait()

	resolved := make([]relay.Attachment, 0, len(refs))
	for _, a := range slots {
		if a != nil {
			resolved = append(resolved, *a)
		}
	}
	return resolved
}

func (s *Service) resolveOne(ctx context.Context, projectID string, ref models.AttachmentRef) (*relay.Attachment, string, error) {
	id := ref.RefID()
	if id == "" {
		return nil, DropInvalid, errors.New("attachment reference has no id")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, DropFetchError, err
	}
	if a == nil {
		return nil, DropNotFound, apperr.NotFound("attachment", id)
	}
	if projectID != "" && a.ProjectID != projectID {
		return nil, DropProjectMismatch, fmt.Errorf("attachment %s belongs to project %s", id, a.ProjectID)
	}

	data, err := s.content(ctx, a)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, DropNotFound, err
		}
		return nil, DropFetchError, err
	}
	if int64(len(data)) != a.Size {
		return nil, DropSizeMismatch, fmt.Errorf("attachment %s: size %d, recorded %d", id, len(data), a.Size)
	}

	return &relay.Attachment{
		ID:          a.ID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
		Content:     base64.StdEncoding.EncodeToString(data),
		URL:         a.DownloadURL,
	}, "", nil
}
