//go:build ocr

package recognize

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// EngineAvailable reports whether the binary was built with the ocr tag
const EngineAvailable = true

// EngineRecognizer runs Tesseract in process through gosseract. The client
// is created on first use and reused; a client is not safe for concurrent
// use, so calls are serialized.
type EngineRecognizer struct {
	cfg Config
	log zerolog.Logger

	once    sync.Once
	initErr error
	mu      sync.Mutex
	client  *gosseract.Client
}

// NewEngineRecognizer creates an in-process recognizer. The caller owns it
// and must Close it.
func NewEngineRecognizer(cfg Config, log zerolog.Logger) (*EngineRecognizer, error) {
	return &EngineRecognizer{
		cfg: cfg.withDefaults(),
		log: log.With().Str("component", "tesseract_engine").Logger(),
	}, nil
}

func (e *EngineRecognizer) Name() string {
	return "tesseract_engine"
}

func (e *EngineRecognizer) init() error {
	e.once.Do(func() {
		client := gosseract.NewClient()
		if e.cfg.TessdataDir != "" {
			client.TessdataPrefix = e.cfg.TessdataDir
		}
		if err := client.SetLanguage(e.cfg.Language); err != nil {
			client.Close()
			e.initErr = err
			return
		}
		if err := client.SetPageSegMode(gosseract.PageSegMode(e.cfg.PSM)); err != nil {
			client.Close()
			e.initErr = err
			return
		}
		e.client = client
		e.log.Info().Str("version", client.Version()).Str("lang", e.cfg.Language).Msg("tesseract engine ready")
	})
	return e.initErr
}

// Recognize runs word-level recognition and segments the words into tokens
func (e *EngineRecognizer) Recognize(ctx context.Context, png []byte) ([]domain.Token, error) {
	if err := e.init(); err != nil {
		return nil, fmt.Errorf("%w: engine init: %v", domain.ErrRecognitionFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", domain.ErrRecognitionFailed, err)
	}
	boxes, err := e.client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecognitionFailed, err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text: b.Word,
			Box: domain.BoundingBox{
				X0: float64(b.Box.Min.X),
				Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X),
				Y1: float64(b.Box.Max.Y),
			},
			Confidence: min(max(b.Confidence/100, 0), 1),
			Block:      b.BlockNum,
			Paragraph:  b.ParNum,
			Line:       b.LineNum,
		})
	}

	return Segment(words, e.cfg.GapFactor), nil
}

// Close releases the engine handle
func (e *EngineRecognizer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
