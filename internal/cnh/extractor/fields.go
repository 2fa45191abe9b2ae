package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

const (
	parentageLabel    = "FILIA"
	registrationLabel = "REGISTRO"
	categoryLabel     = "CAT"
	fixedWindowSize   = 2
	labelLookahead    = 3
)

var (
	categoryCode  = regexp.MustCompile(`^(ACC|AB|AC|AD|AE|A|B|C|D|E)$`)
	// ACC is also the printed field header, so it needs a label
	categoryCombo = regexp.MustCompile(`^(AB|AC|AD|AE)$`)
	numericToken  = regexp.MustCompile(`^[0-9][0-9 .\-/]*$`)
)

// extractName takes the token right after the first Name label
func (e *Extractor) extractName(c *corpus, res *domain.ExtractionResult) {
	for i, en := range c.entries {
		if _, ok := e.nameLabels[en.label]; !ok {
			continue
		}
		if i+1 >= len(c.entries) {
			return
		}
		next := c.entries[i+1]
		res.Set(domain.FieldValue{
			Field:        domain.FieldName,
			Value:        e.opts.Corrections.Apply(next.text),
			Confidence:   next.confidence,
			TokenIndexes: []int{next.index},
		})
		return
	}
}

// extractParentage collects parent names after the first Filiação label
func (e *Extractor) extractParentage(c *corpus, res *domain.ExtractionResult) {
	for i, en := range c.entries {
		if !strings.Contains(en.label, parentageLabel) {
			continue
		}

		var parts []string
		var idx []int
		conf := 1.0
		keep := func(cand entry) {
			parts = append(parts, e.opts.Corrections.Apply(cand.text))
			idx = append(idx, cand.index)
			conf = min(conf, cand.confidence)
		}

		switch e.opts.ParentageStrategy {
		case ParentageFixedWindow:
			for j := i + 1; j < len(c.entries) && len(parts) < fixedWindowSize; j++ {
				keep(c.entries[j])
			}
		default:
			for j := i + 1; j < len(c.entries) && j <= i+e.opts.ParentageWindow; j++ {
				cand := c.entries[j]
				if hasDigit(cand.text) || strings.Contains(cand.label, registrationLabel) {
					break
				}
				if utf8.RuneCountInString(cand.text) > e.opts.MinParentageLength {
					keep(cand)
				}
			}
		}

		if len(parts) > 0 {
			res.Set(domain.FieldValue{
				Field:        domain.FieldParentage,
				Value:        strings.Join(parts, " / "),
				Confidence:   conf,
				TokenIndexes: idx,
			})
		}
		return
	}
}

// extractCategory prefers a code right after a CAT label; without one only
// multi-letter codes are trusted, single letters being too common in text.
func (e *Extractor) extractCategory(c *corpus, res *domain.ExtractionResult) {
	for i, en := range c.entries {
		if !isCategoryLabel(en.label) {
			continue
		}
		for j := i + 1; j < len(c.entries) && j <= i+labelLookahead; j++ {
			cand := c.entries[j]
			code := compactCode(cand.label)
			if categoryCode.MatchString(code) {
				res.Set(domain.FieldValue{
					Field:        domain.FieldCategory,
					Value:        code,
					Confidence:   cand.confidence,
					TokenIndexes: []int{cand.index},
				})
				return
			}
		}
	}

	for _, en := range c.entries {
		code := compactCode(en.label)
		if categoryCombo.MatchString(code) {
			res.Set(domain.FieldValue{
				Field:        domain.FieldCategory,
				Value:        code,
				Confidence:   en.confidence,
				TokenIndexes: []int{en.index},
			})
			return
		}
	}
}

// extractRegistration reads a 9-12 digit run after a REGISTRO label, or
// without a label a standalone 11-digit token that is not the CPF.
func (e *Extractor) extractRegistration(c *corpus, res *domain.ExtractionResult) {
	for i, en := range c.entries {
		if !strings.Contains(en.label, registrationLabel) {
			continue
		}
		for j := i + 1; j < len(c.entries) && j <= i+labelLookahead; j++ {
			cand := c.entries[j]
			if !numericToken.MatchString(cand.label) {
				continue
			}
			if d := digitsOnly(cand.label); len(d) >= 9 && len(d) <= 12 {
				res.Set(domain.FieldValue{
					Field:        domain.FieldRegistrationNumber,
					Value:        d,
					Confidence:   cand.confidence,
					TokenIndexes: []int{cand.index},
				})
				return
			}
		}
		// A label with no usable number is not a reason to guess.
		return
	}

	cpf := res.Get(domain.FieldCPF)
	for _, en := range c.entries {
		if !numericToken.MatchString(en.label) {
			continue
		}
		d := digitsOnly(en.label)
		if len(d) != 11 || (cpf.Found && d == cpf.Value) {
			continue
		}
		res.Set(domain.FieldValue{
			Field:        domain.FieldRegistrationNumber,
			Value:        d,
			Confidence:   en.confidence,
			TokenIndexes: []int{en.index},
		})
		return
	}
}

func isCategoryLabel(label string) bool {
	return label == categoryLabel ||
		strings.HasPrefix(label, categoryLabel+".") ||
		strings.HasPrefix(label, categoryLabel+" ") ||
		strings.HasPrefix(label, "CATEGORIA")
}

func compactCode(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r
		}
		return -1
	}, s)
}
