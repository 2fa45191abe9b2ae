package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/export"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/processor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/service"
	"github.com/cnhflow/cnhflow-backend/pkg/errors"
	"github.com/cnhflow/cnhflow-backend/pkg/httputil"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
)

const defaultMaxUploadSize = 20 << 20 // 20MB

// HealthCheck reports the state of one dependency
type HealthCheck func(ctx context.Context) map[string]string

// Options configures the HTTP surface
type Options struct {
	ServiceName   string
	MaxUploadSize int64
	CSVSeparator  rune
}

// Handler handles HTTP requests for CNH extraction
type Handler struct {
	service *service.Service
	opts    Options
	checks  map[string]HealthCheck
	log     *logger.Logger
}

// NewHandler creates a new CNH extraction handler
func NewHandler(svc *service.Service, opts Options, log *logger.Logger) *Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "cnh-service"
	}
	return &Handler{
		service: svc,
		opts:    opts,
		checks:  make(map[string]HealthCheck),
		log:     log.WithComponent("cnh_handler"),
	}
}

// WithHealthCheck adds a dependency to the health report
func (h *Handler) WithHealthCheck(name string, check HealthCheck) *Handler {
	h.checks[name] = check
	return h
}

// Routes mounts the extraction endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Route("/cnh/extract", func(r chi.Router) {
		r.Post("/", h.Extract)
		r.Post("/tokens", h.ExtractTokens)
		r.Get("/{jobId}", h.GetResult)
		r.Get("/{jobId}/export", h.Export)
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": h.opts.ServiceName,
	}
	for name, check := range h.checks {
		body[name] = check(r.Context())
	}
	httputil.JSON(w, http.StatusOK, body)
}

// Extract handles POST /cnh/extract
// Accepts multipart form with:
// - file: the CNH as PDF, PNG or JPEG
// - consent_timestamp: RFC3339 timestamp of the holder's consent
// - page, zoom, roi, date_strategy, parentage_strategy, producer: optional
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)

	if err := r.ParseMultipartForm(h.opts.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, errors.TooLarge(h.opts.MaxUploadSize))
			return
		}
		httputil.Error(w, errors.BadRequest("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	consent, err := time.Parse(time.RFC3339, r.FormValue("consent_timestamp"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid consent_timestamp, must be RFC3339"))
		return
	}

	doc, overrides, err := parseDocumentForm(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.BadRequest("missing file in request"))
		return
	}
	defer file.Close()

	// Read file into memory; the service zeroes it after processing
	doc.Data, err = io.ReadAll(file)
	if err != nil {
		httputil.Error(w, errors.Internal("failed to read uploaded file"))
		return
	}

	job, err := h.service.StartExtraction(r.Context(), service.Request{
		Document:         doc,
		ConsentTimestamp: consent,
		UserID:           httputil.GetUserID(r.Context()),
		Overrides:        overrides,
		Producer:         r.FormValue("producer"),
	})
	if err != nil {
		h.log.Warn().Err(err).Str("request_id", httputil.GetRequestID(r.Context())).Msg("extraction rejected")
		httputil.Error(w, err)
		return
	}

	httputil.Accepted(w, job)
}

// GetResult handles GET /cnh/extract/{jobId}
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(chi.URLParam(r, "jobId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, job)
}

// Export handles GET /cnh/extract/{jobId}/export?format=csv|xlsx
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.Error(w, errors.BadRequest(err.Error()))
		return
	}

	job, err := h.service.GetJob(chi.URLParam(r, "jobId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if job.Status != domain.StatusCompleted || job.Result == nil {
		httputil.Error(w, errors.Conflict(fmt.Sprintf("extraction job is %s", job.Status)))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cnh-%s.%s"`, job.JobID, format))
	if err := export.Write(w, format, h.opts.CSVSeparator, job.Result); err != nil {
		h.log.Error().Err(err).Str("job_id", job.JobID).Msg("export failed")
	}
}

// TokensRequest is the body of POST /cnh/extract/tokens
type TokensRequest struct {
	Tokens  []domain.Token `json:"tokens" validate:"required,min=1,max=5000,dive"`
	Options *TokenOptions  `json:"options,omitempty"`
}

// TokenOptions are per-call extractor overrides
type TokenOptions struct {
	DateStrategy      string            `json:"date_strategy,omitempty" validate:"omitempty,oneof=label_distance positional"`
	ParentageStrategy string            `json:"parentage_strategy,omitempty" validate:"omitempty,oneof=stop_at_digit fixed_window"`
	Corrections       map[string]string `json:"corrections,omitempty" validate:"omitempty,max=500"`
}

// ExtractTokens handles POST /cnh/extract/tokens
// Runs only the field extractor over tokens the caller already recognized.
func (h *Handler) ExtractTokens(w http.ResponseWriter, r *http.Request) {
	var req TokensRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	var ov extractor.Overrides
	if o := req.Options; o != nil {
		// values were checked by the oneof tags
		ov.DateStrategy = extractor.DateStrategy(o.DateStrategy)
		ov.ParentageStrategy = extractor.ParentageStrategy(o.ParentageStrategy)
		ov.Corrections = o.Corrections
	}

	httputil.JSON(w, http.StatusOK, h.service.ExtractTokens(req.Tokens, ov))
}

// parseDocumentForm reads the optional reading parameters of an upload
func parseDocumentForm(r *http.Request) (processor.Document, extractor.Overrides, error) {
	var (
		doc processor.Document
		ov  extractor.Overrides
		err error
	)

	if v := r.FormValue("page"); v != "" {
		doc.Page, err = strconv.Atoi(v)
		if err != nil || doc.Page < 1 {
			return doc, ov, errors.BadRequest("page must be a positive integer")
		}
	}
	if v := r.FormValue("zoom"); v != "" {
		doc.Zoom, err = strconv.ParseFloat(v, 64)
		if err != nil || doc.Zoom <= 0 || doc.Zoom > 10 {
			return doc, ov, errors.BadRequest("zoom must be a number within (0, 10]")
		}
	}
	if v := r.FormValue("roi"); v != "" {
		doc.ROI, err = render.ParseROI(v)
		if err != nil {
			return doc, ov, errors.BadRequest(err.Error())
		}
	}

	// empty keeps the configured strategy
	if v := r.FormValue("date_strategy"); v != "" {
		ov.DateStrategy, err = extractor.ParseDateStrategy(v)
		if err != nil {
			return doc, ov, errors.BadRequest(err.Error())
		}
	}
	if v := r.FormValue("parentage_strategy"); v != "" {
		ov.ParentageStrategy, err = extractor.ParseParentageStrategy(v)
		if err != nil {
			return doc, ov, errors.BadRequest(err.Error())
		}
	}
	return doc, ov, nil
}
