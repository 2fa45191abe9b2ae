package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/recognize"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
)

// OCRProducer rasterizes the page and runs a recognizer over the bitmap.
// Image uploads skip rendering.
type OCRProducer struct {
	renderer   render.Renderer
	recognizer recognize.Recognizer
	preprocess render.Preprocess
	log        zerolog.Logger
}

// NewOCRProducer creates an OCR producer. pp is used when the document does
// not carry its own preprocessing settings.
func NewOCRProducer(renderer render.Renderer, recognizer recognize.Recognizer, pp render.Preprocess, log zerolog.Logger) *OCRProducer {
	return &OCRProducer{
		renderer:   renderer,
		recognizer: recognizer,
		preprocess: pp,
		log:        log.With().Str("component", "ocr_producer").Logger(),
	}
}

func (p *OCRProducer) Name() string {
	return "ocr:" + p.recognizer.Name()
}

func (p *OCRProducer) CanProcess(doc Document) bool {
	switch doc.Kind() {
	case KindPDF, KindPNG, KindJPEG:
		return true
	}
	return false
}

func (p *OCRProducer) Tokens(ctx context.Context, doc Document) ([]domain.Token, error) {
	bitmap := doc.Data
	if doc.Kind() == KindPDF {
		png, err := p.renderer.Render(ctx, doc.Data, doc.PageOrDefault(), doc.Zoom)
		if err != nil {
			return nil, err
		}
		bitmap = png
	}

	pp := doc.Preprocess
	if pp.IsZero() {
		pp = p.preprocess
	}
	bitmap, err := render.Apply(bitmap, doc.ROI, pp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	tokens, err := p.recognizer.Recognize(ctx, bitmap)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, domain.ErrNoTokens
	}

	p.log.Debug().Int("tokens", len(tokens)).Msg("page recognized")
	return tokens, nil
}
