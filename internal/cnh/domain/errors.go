package domain

import "errors"

// Upstream failures. The extractor itself never fails; these come from the
// steps that turn a document into tokens.
var (
	ErrInvalidDocument   = errors.New("invalid or corrupt document")
	ErrRenderFailed      = errors.New("page rendering failed")
	ErrRecognitionFailed = errors.New("text recognition failed")
	ErrNoTokens          = errors.New("no text recognized on page")
	ErrNoProducer        = errors.New("no token producer available")
)

// Code returns a stable machine readable code for an upstream failure
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDocument):
		return "INVALID_DOCUMENT"
	case errors.Is(err, ErrNoTokens):
		return "NO_TEXT"
	case errors.Is(err, ErrRenderFailed), errors.Is(err, ErrRecognitionFailed):
		return "EXTRACTION_FAILED"
	case errors.Is(err, ErrNoProducer):
		return "UNSUPPORTED_DOCUMENT"
	default:
		return "INTERNAL_ERROR"
	}
}
