package processor

import (
	"bytes"
	"context"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
)

// Kind is the detected upload format
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindPNG     Kind = "png"
	KindJPEG    Kind = "jpeg"
	KindUnknown Kind = "unknown"
)

var (
	magicPDF  = []byte("%PDF-")
	magicPNG  = []byte("\x89PNG\r\n\x1a\n")
	magicJPEG = []byte("\xff\xd8\xff")
)

// DetectKind sniffs the document format from its leading bytes
func DetectKind(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, magicPDF):
		return KindPDF
	case bytes.HasPrefix(data, magicPNG):
		return KindPNG
	case bytes.HasPrefix(data, magicJPEG):
		return KindJPEG
	}
	return KindUnknown
}

// Document is one uploaded file plus the parameters that say how to read it.
// Data must not be retained by producers after Tokens returns.
type Document struct {
	Data       []byte
	Page       int
	Zoom       float64
	ROI        render.ROI
	Preprocess render.Preprocess
}

// Kind returns the detected format of the document bytes
func (d Document) Kind() Kind {
	return DetectKind(d.Data)
}

// PageOrDefault returns the requested page, 1 when unset
func (d Document) PageOrDefault() int {
	if d.Page < 1 {
		return 1
	}
	return d.Page
}

// TokenProducer turns a document into an ordered token sequence.
// Implementations can be swapped in without touching the service or handler.
type TokenProducer interface {
	// CanProcess returns true if this producer handles the document format
	CanProcess(doc Document) bool

	// Tokens reads the document. An empty result is reported as
	// domain.ErrNoTokens so the caller can fall back to the next producer.
	Tokens(ctx context.Context, doc Document) ([]domain.Token, error)

	// Name returns the producer name for logging/audit
	Name() string
}

// Registry holds all registered producers in priority order
type Registry struct {
	producers []TokenProducer
}

// NewRegistry creates a new producer registry
func NewRegistry(producers ...TokenProducer) *Registry {
	return &Registry{producers: producers}
}

// FindProducers returns every producer that can handle the document, in
// registration order. If the first one fails (e.g. a scanned PDF has no
// text layer) the next one can try.
func (r *Registry) FindProducers(doc Document) []TokenProducer {
	var result []TokenProducer
	for _, p := range r.producers {
		if p.CanProcess(doc) {
			result = append(result, p)
		}
	}
	return result
}

// Get returns the producer registered under name
func (r *Registry) Get(name string) (TokenProducer, bool) {
	for _, p := range r.producers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Names lists the registered producers
func (r *Registry) Names() []string {
	names := make([]string, len(r.producers))
	for i, p := range r.producers {
		names[i] = p.Name()
	}
	return names
}
