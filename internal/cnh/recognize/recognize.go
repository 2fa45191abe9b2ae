// Package recognize turns page bitmaps into phrase-level tokens.
package recognize

import (
	"context"
	"errors"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// DefaultGapFactor splits a line where the horizontal gap is wider than
// 1.5 times the line height.
const DefaultGapFactor = 1.5

// ErrOCRNotEnabled is returned when the in-process engine is requested from
// a binary built without the ocr tag.
var ErrOCRNotEnabled = errors.New("in-process OCR not enabled: build with -tags ocr")

// Recognizer produces tokens in reading order from a PNG bitmap
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, png []byte) ([]domain.Token, error)
}

// Config holds the Tesseract settings shared by both recognizers
type Config struct {
	Binary      string
	Language    string
	PSM         int
	TessdataDir string
	GapFactor   float64
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "tesseract"
	}
	if c.Language == "" {
		c.Language = "por"
	}
	if c.PSM <= 0 {
		c.PSM = 11
	}
	if c.GapFactor <= 0 {
		c.GapFactor = DefaultGapFactor
	}
	return c
}

// Word is a single word as reported by the engine
type Word struct {
	Text       string
	Box        domain.BoundingBox
	Confidence float64 // 0..1
	Block      int
	Paragraph  int
	Line       int
}

func (w Word) sameLine(o Word) bool {
	return w.Block == o.Block && w.Paragraph == o.Paragraph && w.Line == o.Line
}
