//go:build !ocr

package recognize

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// EngineAvailable reports whether the binary was built with the ocr tag
const EngineAvailable = false

// EngineRecognizer is unavailable in this build
type EngineRecognizer struct{}

// NewEngineRecognizer always fails without the ocr build tag
func NewEngineRecognizer(Config, zerolog.Logger) (*EngineRecognizer, error) {
	return nil, ErrOCRNotEnabled
}

func (e *EngineRecognizer) Name() string {
	return "tesseract_engine"
}

func (e *EngineRecognizer) Recognize(context.Context, []byte) ([]domain.Token, error) {
	return nil, ErrOCRNotEnabled
}

func (e *EngineRecognizer) Close() error {
	return nil
}
