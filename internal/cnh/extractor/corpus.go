package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// entry is a token after normalization
type entry struct {
	index      int     // Token.Index from the producer
	text       string  // NormalizeText form, diacritics kept
	label      string  // LabelForm
	confidence float64 // 1 when the producer gave none
	start, end int     // byte span inside corpus.text
}

// corpus is the normalized view of a token sequence: the entries plus their
// space-joined folded text, used by the regex-driven fields.
type corpus struct {
	entries []entry
	text    string
}

func newCorpus(tokens []domain.Token, dropShort bool) *corpus {
	c := &corpus{entries: make([]entry, 0, len(tokens))}
	var b strings.Builder

	for _, t := range tokens {
		text := NormalizeText(t.Text)
		if text == "" {
			continue
		}
		if dropShort && utf8.RuneCountInString(text) <= 1 {
			continue
		}

		folded := Fold(text)
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		start := b.Len()
		b.WriteString(folded)

		conf := 1.0
		if t.Confidence != nil {
			conf = *t.Confidence
		}
		c.entries = append(c.entries, entry{
			index:      t.Index,
			text:       text,
			label:      strings.TrimRight(folded, ":.;,- "),
			confidence: conf,
			start:      start,
			end:        b.Len(),
		})
	}

	c.text = b.String()
	return c
}

// covering returns the token indexes and minimum confidence of the entries
// overlapping the byte range [start, end) of the corpus text.
func (c *corpus) covering(start, end int) ([]int, float64) {
	var idx []int
	conf := 1.0
	for _, e := range c.entries {
		if e.end <= start || e.start >= end {
			continue
		}
		idx = append(idx, e.index)
		conf = min(conf, e.confidence)
	}
	return idx, conf
}
