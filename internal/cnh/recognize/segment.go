package recognize

import (
	"strings"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// Segment merges consecutive words of the same line into one token. A new
// token starts on a line change or where the gap to the previous word is
// wider than gapFactor times the line height, which is how printed CNH
// labels and values end up apart even when on the same row.
func Segment(words []Word, gapFactor float64) []domain.Token {
	if gapFactor <= 0 {
		gapFactor = DefaultGapFactor
	}

	var (
		tokens []domain.Token
		cur    []Word
		height float64
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		box := cur[0].Box
		var sum float64
		for i, w := range cur {
			texts[i] = w.Text
			box = box.Union(w.Box)
			sum += w.Confidence
		}
		b := box
		conf := sum / float64(len(cur))
		tokens = append(tokens, domain.Token{
			Text:       strings.Join(texts, " "),
			Box:        &b,
			Confidence: &conf,
			Index:      len(tokens),
		})
		cur = cur[:0]
		height = 0
	}

	for _, w := range words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text == "" {
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			gap := w.Box.X0 - prev.Box.X1
			if !prev.sameLine(w) || gap > gapFactor*height {
				flush()
			}
		}
		cur = append(cur, w)
		height = max(height, w.Box.Height())
	}
	flush()

	return tokens
}
