package processor

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/recognize"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
)

const (
	// glyphs further apart than this fraction of the font size start a new word
	wordGapRatio = 0.25
	// baselines closer than this fraction of the font size share a line
	lineToleranceRatio = 0.5
	// parent chain depth searched for an inherited MediaBox
	maxInheritDepth = 10
)

// Glyph is one positioned string from a PDF content stream. X and Y are in
// PDF points with the origin at the bottom left.
type Glyph struct {
	S        string
	X, Y, W  float64
	FontSize float64
}

// TextLayerProducer reads the text embedded in digitally issued CNH PDFs.
// Scanned documents have no text layer and yield domain.ErrNoTokens.
type TextLayerProducer struct {
	gapFactor float64
	log       zerolog.Logger
}

// NewTextLayerProducer creates a text layer producer. gapFactor has the same
// meaning as in recognize.Segment.
func NewTextLayerProducer(gapFactor float64, log zerolog.Logger) *TextLayerProducer {
	return &TextLayerProducer{
		gapFactor: gapFactor,
		log:       log.With().Str("component", "textlayer_producer").Logger(),
	}
}

func (p *TextLayerProducer) Name() string {
	return "textlayer"
}

func (p *TextLayerProducer) CanProcess(doc Document) bool {
	return doc.Kind() == KindPDF
}

func (p *TextLayerProducer) Tokens(ctx context.Context, doc Document) (tokens []domain.Token, err error) {
	// the content stream interpreter panics on some malformed fonts
	defer func() {
		if r := recover(); r != nil {
			tokens, err = nil, fmt.Errorf("%w: text layer: %v", domain.ErrInvalidDocument, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}

	n := doc.PageOrDefault()
	if n > r.NumPage() {
		return nil, fmt.Errorf("%w: page %d out of range (document has %d)", domain.ErrInvalidDocument, n, r.NumPage())
	}
	page := r.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("%w: page %d is empty", domain.ErrInvalidDocument, n)
	}

	texts := page.Content().Text
	glyphs := make([]Glyph, 0, len(texts))
	for _, t := range texts {
		glyphs = append(glyphs, Glyph{S: t.S, X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize})
	}

	width, height := mediaBox(page)
	words := GroupGlyphs(glyphs, height)
	if !doc.ROI.IsZero() && width > 0 && height > 0 {
		words = filterROI(words, doc.ROI, width, height)
	}

	tokens = recognize.Segment(words, p.gapFactor)
	if len(tokens) == 0 {
		return nil, domain.ErrNoTokens
	}

	p.log.Debug().Int("glyphs", len(glyphs)).Int("tokens", len(tokens)).Msg("text layer read")
	return tokens, nil
}

// GroupGlyphs assembles glyphs into words with top-left based boxes, in
// reading order. pageHeight flips the Y axis; zero leaves it mirrored,
// which keeps the order but not the coordinates.
func GroupGlyphs(glyphs []Glyph, pageHeight float64) []recognize.Word {
	if len(glyphs) == 0 {
		return nil
	}

	// cluster baselines top to bottom, then order each line left to right
	sorted := make([]Glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	lines := make([]int, len(sorted))
	anchor := sorted[0]
	for i := 1; i < len(sorted); i++ {
		lines[i] = lines[i-1]
		if !sameBaseline(anchor, sorted[i]) {
			anchor = sorted[i]
			lines[i]++
		}
	}

	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if lines[order[a]] != lines[order[b]] {
			return lines[order[a]] < lines[order[b]]
		}
		return sorted[order[a]].X < sorted[order[b]].X
	})

	var (
		words []recognize.Word
		cur   strings.Builder
		box   domain.BoundingBox
		prev  Glyph
		line  int
	)
	flush := func() {
		if text := strings.TrimSpace(cur.String()); text != "" {
			words = append(words, recognize.Word{
				Text:       text,
				Box:        box,
				Confidence: 1,
				Line:       line,
			})
		}
		cur.Reset()
	}

	for i, k := range order {
		g := sorted[k]
		blank := strings.TrimSpace(g.S) == ""

		switch {
		case i == 0:
		case lines[k] != line:
			flush()
			line = lines[k]
		case blank:
			flush()
		case g.X-(prev.X+prev.W) > wordGapRatio*max(g.FontSize, prev.FontSize):
			flush()
		}
		prev = g
		if blank {
			continue
		}

		gb := glyphBox(g, pageHeight)
		if cur.Len() == 0 {
			box = gb
		} else {
			box = box.Union(gb)
		}
		cur.WriteString(g.S)
	}
	flush()

	return words
}

func sameBaseline(a, b Glyph) bool {
	return math.Abs(a.Y-b.Y) <= lineToleranceRatio*max(a.FontSize, b.FontSize, 1)
}

func glyphBox(g Glyph, pageHeight float64) domain.BoundingBox {
	return domain.BoundingBox{
		X0: g.X,
		Y0: pageHeight - g.Y - g.FontSize,
		X1: g.X + g.W,
		Y1: pageHeight - g.Y,
	}
}

func filterROI(words []recognize.Word, roi render.ROI, width, height float64) []recognize.Word {
	out := words[:0]
	for _, w := range words {
		cx := (w.Box.X0 + w.Box.X1) / 2 / width
		cy := (w.Box.Y0 + w.Box.Y1) / 2 / height
		if cx >= roi.Left && cx <= roi.Right && cy >= roi.Top && cy <= roi.Bottom {
			out = append(out, w)
		}
	}
	return out
}

// mediaBox returns the page size in points, searching parents for an
// inherited box. Zero means unknown.
func mediaBox(page pdf.Page) (float64, float64) {
	v := page.V
	for i := 0; i < maxInheritDepth && !v.IsNull(); i++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return 0, 0
}
