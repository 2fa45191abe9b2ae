package extractor

import (
	"time"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// Extractor turns an ordered token sequence into an ExtractionResult using
// label-anchored proximity search and format parsers. It holds no state
// besides its options, so one instance can serve concurrent callers.
type Extractor struct {
	opts       Options
	nameLabels map[string]struct{}
}

// New creates an Extractor. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Extractor {
	opts = opts.withDefaults()
	labels := make(map[string]struct{}, len(opts.NameLabels))
	for _, l := range opts.NameLabels {
		labels[LabelForm(l)] = struct{}{}
	}
	return &Extractor{opts: opts, nameLabels: labels}
}

// Extract runs a single extraction with the given options
func Extract(tokens []domain.Token, opts Options) *domain.ExtractionResult {
	return New(opts).Extract(tokens)
}

// Options returns the effective options
func (e *Extractor) Options() Options {
	return e.opts
}

// WithOverrides returns an Extractor with per-call overrides applied
func (e *Extractor) WithOverrides(ov Overrides) *Extractor {
	return New(e.opts.Apply(ov))
}

// Extract never fails: every field that cannot be located is reported as
// not found in the returned result.
func (e *Extractor) Extract(tokens []domain.Token) *domain.ExtractionResult {
	start := time.Now()
	res := domain.NewExtractionResult()
	c := newCorpus(tokens, e.opts.DropShortTokens)

	if len(c.entries) > 0 {
		e.extractName(c, res)
		e.extractParentage(c, res)
		e.extractCPF(c, res)
		e.extractDates(c, res)
		e.extractCategory(c, res)
		e.extractRegistration(c, res)
	}

	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res
}
