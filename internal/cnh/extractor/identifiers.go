package extractor

import (
	"regexp"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// 3-3-3-2 digit groups with an optional single separator between groups
var cpfPattern = regexp.MustCompile(`[0-9]{3}[ .,\-]?[0-9]{3}[ .,\-]?[0-9]{3}[ .,\-]?[0-9]{2}`)

// extractCPF takes the first digit-bounded CPF-shaped run in the corpus text
func (e *Extractor) extractCPF(c *corpus, res *domain.ExtractionResult) {
	for _, loc := range cpfPattern.FindAllStringIndex(c.text, -1) {
		if !digitBounded(c.text, loc[0], loc[1]) {
			continue
		}
		digits := digitsOnly(c.text[loc[0]:loc[1]])
		if len(digits) != 11 {
			continue
		}
		if !ValidCPF(digits) {
			if e.opts.ValidateCPFChecksum {
				res.Warnings = append(res.Warnings, "cpf discarded: check digits do not match")
				return
			}
			res.Warnings = append(res.Warnings, "cpf check digits do not match")
		}

		idx, conf := c.covering(loc[0], loc[1])
		res.Set(domain.FieldValue{
			Field:        domain.FieldCPF,
			Value:        digits,
			Confidence:   conf,
			TokenIndexes: idx,
		})
		return
	}
}

// ValidCPF checks the two CPF verification digits. Sequences of one
// repeated digit pass the arithmetic but are never issued.
func ValidCPF(digits string) bool {
	if len(digits) != 11 {
		return false
	}
	same := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	check := func(n int) byte {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		r := sum * 10 % 11
		if r == 10 {
			r = 0
		}
		return byte('0' + r)
	}
	return check(9) == digits[9] && check(10) == digits[10]
}

// digitBounded reports whether text[start:end] is not glued to other digits
func digitBounded(text string, start, end int) bool {
	if start > 0 && isASCIIDigit(text[start-1]) {
		return false
	}
	if end < len(text) && isASCIIDigit(text[end]) {
		return false
	}
	return true
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
