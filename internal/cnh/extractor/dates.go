package extractor

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

const dateLayout = "02/01/2006"

var datePattern = regexp.MustCompile(`[0-9]{2}/[0-9]{2}/[0-9]{4}`)

// dateLabels maps the folded label text to the field it anchors
var dateLabels = []struct {
	label string
	field domain.Field
}{
	{"NASCIMENTO", domain.FieldBirthDate},
	{"VALIDADE", domain.FieldValidityDate},
}

type dateMatch struct {
	value      string
	start, end int
}

// findDates returns every calendar-valid DD/MM/YYYY in the corpus text
func findDates(text string) []dateMatch {
	var out []dateMatch
	for _, loc := range datePattern.FindAllStringIndex(text, -1) {
		if !digitBounded(text, loc[0], loc[1]) {
			continue
		}
		v := text[loc[0]:loc[1]]
		if _, err := time.Parse(dateLayout, v); err != nil {
			continue
		}
		out = append(out, dateMatch{value: v, start: loc[0], end: loc[1]})
	}
	return out
}

func (e *Extractor) extractDates(c *corpus, res *domain.ExtractionResult) {
	dates := findDates(c.text)
	if len(dates) == 0 {
		return
	}

	if e.opts.DateStrategy == DateByLabelDistance {
		if e.assignDatesByLabel(c, dates, res) {
			return
		}
		res.Warnings = append(res.Warnings, "no date labels found, dates assigned by position")
	}
	assignDatesByPosition(c, dates, res)
}

func assignDatesByPosition(c *corpus, dates []dateMatch, res *domain.ExtractionResult) {
	for i, f := range []domain.Field{domain.FieldBirthDate, domain.FieldValidityDate} {
		if i >= len(dates) {
			return
		}
		setDate(c, f, dates[i], res)
	}
}

// assignDatesByLabel pairs labels and dates greedily by text distance so a
// date never fills two fields. It returns false when no label is present.
func (e *Extractor) assignDatesByLabel(c *corpus, dates []dateMatch, res *domain.ExtractionResult) bool {
	type pair struct {
		field    domain.Field
		date     int
		distance int
		after    bool
	}

	var pairs []pair
	labelSeen := false
	for _, dl := range dateLabels {
		for _, ls := range labelOffsets(c.text, dl.label) {
			labelSeen = true
			le := ls + len(dl.label)
			for i, d := range dates {
				dist := spanDistance(ls, le, d.start, d.end)
				if dist <= e.opts.MaxLabelDistance {
					pairs = append(pairs, pair{field: dl.field, date: i, distance: dist, after: d.start >= le})
				}
			}
		}
	}
	if !labelSeen {
		return false
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].distance != pairs[j].distance {
			return pairs[i].distance < pairs[j].distance
		}
		// values are printed after their label
		if pairs[i].after != pairs[j].after {
			return pairs[i].after
		}
		return dates[pairs[i].date].start < dates[pairs[j].date].start
	})

	usedDate := make(map[int]bool)
	for _, p := range pairs {
		if usedDate[p.date] || res.Get(p.field).Found {
			continue
		}
		usedDate[p.date] = true
		setDate(c, p.field, dates[p.date], res)
	}
	return true
}

func setDate(c *corpus, f domain.Field, d dateMatch, res *domain.ExtractionResult) {
	idx, conf := c.covering(d.start, d.end)
	res.Set(domain.FieldValue{
		Field:        f,
		Value:        d.value,
		Confidence:   conf,
		TokenIndexes: idx,
	})
}

func labelOffsets(text, label string) []int {
	var out []int
	for from := 0; ; {
		i := strings.Index(text[from:], label)
		if i < 0 {
			return out
		}
		out = append(out, from+i)
		from += i + len(label)
	}
}

// spanDistance is the gap in bytes between [as, ae) and [bs, be), zero when they overlap
func spanDistance(as, ae, bs, be int) int {
	switch {
	case bs >= ae:
		return bs - ae
	case be <= as:
		return as - be
	default:
		return 0
	}
}
