package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/events"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/processor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/storage"
	"github.com/cnhflow/cnhflow-backend/pkg/errors"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
)

// SourceTokens is the result source for caller supplied tokens
const SourceTokens = "tokens"

const defaultTimeout = 2 * time.Minute

// AuditStore is satisfied by *repository.AuditRepository
type AuditStore interface {
	Insert(ctx context.Context, e *domain.ProcessingAuditEntry) error
}

// Request describes one document to extract. Document.Data is zeroed by the
// service once processing ends; callers must not reuse it.
type Request struct {
	Document         processor.Document
	ConsentTimestamp time.Time
	UserID           string
	Overrides        extractor.Overrides
	// Producer restricts extraction to one named producer. Empty tries
	// every registered producer in order.
	Producer string
}

// Service orchestrates extraction: validate, produce tokens with fallback,
// extract fields, destroy the document, audit and announce.
type Service struct {
	registry       *processor.Registry
	extractor      *extractor.Extractor
	storage        *storage.TempStorage
	audit          AuditStore
	notifier       *events.Notifier
	fingerprintKey []byte
	timeout        time.Duration
	defaultZoom    float64
	defaultROI     render.ROI
	log            *logger.Logger

	wg sync.WaitGroup
}

// NewService creates a new extraction service
func NewService(registry *processor.Registry, ex *extractor.Extractor, store *storage.TempStorage, log *logger.Logger) *Service {
	return &Service{
		registry:  registry,
		extractor: ex,
		storage:   store,
		timeout:   defaultTimeout,
		log:       log.WithComponent("extraction_service"),
	}
}

// WithAudit enables audit rows
func (s *Service) WithAudit(a AuditStore) *Service {
	s.audit = a
	return s
}

// WithNotifier enables broker events
func (s *Service) WithNotifier(n *events.Notifier) *Service {
	s.notifier = n
	return s
}

// WithFingerprintKey sets the blake2b key used for document fingerprints.
// At most 64 bytes.
func (s *Service) WithFingerprintKey(key string) *Service {
	s.fingerprintKey = []byte(key)
	return s
}

// WithTimeout bounds the time spent on one document
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithDocumentDefaults sets the zoom and region of interest used when a
// request leaves them unset
func (s *Service) WithDocumentDefaults(zoom float64, roi render.ROI) *Service {
	s.defaultZoom = zoom
	s.defaultROI = roi
	return s
}

// StartExtraction creates a job and processes the document asynchronously.
// Returns the job immediately so the caller can poll for results.
func (s *Service) StartExtraction(ctx context.Context, req Request) (*domain.ExtractionJob, error) {
	req.Document = s.withDefaults(req.Document)
	producers, err := s.prepare(req)
	if err != nil {
		storage.ZeroBytes(req.Document.Data)
		return nil, err
	}

	jobID := storage.GenerateJobID()
	s.storage.StoreJob(&domain.ExtractionJob{
		JobID:     jobID,
		Status:    domain.StatusProcessing,
		CreatedAt: time.Now(),
	})
	job := s.storage.GetJob(jobID)

	// Detached so the request ending does not cancel processing
	bgCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processAsync(bgCtx, jobID, req, producers)
	}()

	return job, nil
}

// Extract processes the document synchronously
func (s *Service) Extract(ctx context.Context, req Request) (*domain.ExtractionResult, error) {
	req.Document = s.withDefaults(req.Document)
	producers, err := s.prepare(req)
	if err != nil {
		storage.ZeroBytes(req.Document.Data)
		return nil, err
	}
	return s.run(ctx, storage.GenerateJobID(), req, producers)
}

// ExtractTokens runs only the field extractor over tokens a caller already has
func (s *Service) ExtractTokens(tokens []domain.Token, ov extractor.Overrides) *domain.ExtractionResult {
	res := s.extractor.WithOverrides(ov).Extract(tokens)
	res.Source = SourceTokens
	return res
}

// GetJob retrieves an extraction job by ID
func (s *Service) GetJob(jobID string) (*domain.ExtractionJob, error) {
	job := s.storage.GetJob(jobID)
	if job == nil {
		return nil, errors.NotFound("extraction job")
	}
	return job, nil
}

// Shutdown waits for in-flight jobs or until ctx is done
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) withDefaults(doc processor.Document) processor.Document {
	if doc.Zoom <= 0 {
		doc.Zoom = s.defaultZoom
	}
	if doc.ROI.IsZero() {
		doc.ROI = s.defaultROI
	}
	return doc
}

// prepare rejects unusable documents before any job exists
func (s *Service) prepare(req Request) ([]processor.TokenProducer, error) {
	doc := req.Document
	if len(doc.Data) == 0 {
		return nil, errors.BadRequest("empty document")
	}

	switch doc.Kind() {
	case processor.KindPDF:
		if err := render.CheckPage(doc.Data, doc.PageOrDefault()); err != nil {
			return nil, errors.Wrap(err, "INVALID_DOCUMENT", "document is not a readable PDF", http.StatusUnprocessableEntity)
		}
	case processor.KindPNG, processor.KindJPEG:
	default:
		return nil, errors.InvalidDocument("document must be a PDF, PNG or JPEG file")
	}

	if !doc.ROI.IsZero() {
		if err := doc.ROI.Validate(); err != nil {
			return nil, errors.BadRequest(err.Error())
		}
	}

	if req.Producer != "" {
		p, ok := s.registry.Get(req.Producer)
		if !ok {
			return nil, errors.BadRequest(fmt.Sprintf("unknown producer %q", req.Producer))
		}
		if !p.CanProcess(doc) {
			return nil, errors.InvalidDocument(fmt.Sprintf("producer %q cannot read %s documents", req.Producer, doc.Kind()))
		}
		return []processor.TokenProducer{p}, nil
	}

	producers := s.registry.FindProducers(doc)
	if len(producers) == 0 {
		return nil, errors.InvalidDocument(fmt.Sprintf("no producer configured for %s documents", doc.Kind()))
	}
	return producers, nil
}

func (s *Service) processAsync(ctx context.Context, jobID string, req Request, producers []processor.TokenProducer) {
	res, err := s.run(ctx, jobID, req, producers)
	if err != nil {
		s.storage.UpdateJob(jobID, func(j *domain.ExtractionJob) {
			j.Status = domain.StatusFailed
			j.Error = err.Error()
		})
		return
	}

	s.storage.UpdateJob(jobID, func(j *domain.ExtractionJob) {
		j.Status = domain.StatusCompleted
		j.Result = res
	})
}

// run produces tokens with fallback and extracts the fields. The document
// bytes are zeroed before run returns, whatever the outcome.
func (s *Service) run(ctx context.Context, jobID string, req Request, producers []processor.TokenProducer) (*domain.ExtractionResult, error) {
	start := time.Now()
	log := s.log.WithJobID(jobID)
	doc := req.Document
	fingerprint := s.fingerprint(doc.Data)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		tokens   []domain.Token
		producer string
		lastErr  error
	)
	for _, p := range producers {
		log.Info().Str("producer", p.Name()).Msg("trying token producer")

		tokens, lastErr = p.Tokens(ctx, doc)
		if lastErr == nil {
			producer = p.Name()
			break
		}
		log.Warn().Err(lastErr).Str("producer", p.Name()).Msg("producer failed, trying next")
		if ctx.Err() != nil {
			break
		}
	}

	// Never keep the document past processing
	storage.ZeroBytes(doc.Data)
	deletedAt := time.Now()

	if lastErr != nil {
		log.Error().Err(lastErr).Str("code", domain.Code(lastErr)).Msg("all producers failed")
		s.writeAudit(ctx, jobID, fingerprint, "", req, nil, time.Since(start), deletedAt)
		s.notifier.Failed(ctx, jobID, fingerprint, lastErr)
		return nil, lastErr
	}

	res := s.extractor.WithOverrides(req.Overrides).Extract(tokens)
	res.Source = producer
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	s.writeAudit(ctx, jobID, fingerprint, producer, req, res.FoundFields(), time.Since(start), deletedAt)
	s.notifier.Completed(ctx, jobID, fingerprint, res)

	log.Info().
		Str("producer", producer).
		Int("tokens", len(tokens)).
		Int("fields_found", len(res.FoundFields())).
		Int("warnings", len(res.Warnings)).
		Int64("duration_ms", res.ProcessingTimeMs).
		Msg("document extraction completed")

	return res, nil
}

// writeAudit records the processing event. Failures are logged, never
// surfaced: the extraction already happened.
func (s *Service) writeAudit(ctx context.Context, jobID, fingerprint, producer string, req Request, fields []string, took time.Duration, deletedAt time.Time) {
	if s.audit == nil {
		return
	}
	if producer == "" {
		producer = "none"
	}

	entry := &domain.ProcessingAuditEntry{
		ID:                   uuid.NewString(),
		JobID:                jobID,
		DocumentFingerprint:  fingerprint,
		Producer:             producer,
		ConsentTimestamp:     req.ConsentTimestamp,
		ConsentGivenBy:       req.UserID,
		FieldsExtracted:      fields,
		ProcessingDurationMs: took.Milliseconds(),
		DocumentDeletedAt:    deletedAt,
	}
	// the job deadline may already be spent
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.audit.Insert(auditCtx, entry); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("failed to write document processing audit log")
	}
}

// fingerprint identifies a document in audit rows without revealing it
func (s *Service) fingerprint(data []byte) string {
	h, err := blake2b.New256(s.fingerprintKey)
	if err != nil {
		// only possible with a key over 64 bytes, rejected by config validation
		h, _ = blake2b.New256(nil)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
