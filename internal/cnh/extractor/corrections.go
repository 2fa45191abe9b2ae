package extractor

import "strings"

// CorrectionMap maps an observed misrecognition to its canonical spelling.
// Keys are stored in LabelForm so lookups ignore case and diacritics.
type CorrectionMap map[string]string

// NewCorrectionMap builds a CorrectionMap from raw configuration, which may
// come with lowercase keys (viper lowercases map keys).
func NewCorrectionMap(raw map[string]string) CorrectionMap {
	m := make(CorrectionMap, len(raw))
	for k, v := range raw {
		key := LabelForm(k)
		if key == "" {
			continue
		}
		m[key] = NormalizeText(v)
	}
	return m
}

// Merge returns a new map with the entries of other taking precedence
func (m CorrectionMap) Merge(other CorrectionMap) CorrectionMap {
	out := make(CorrectionMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Apply corrects a whole value first and falls back to word-by-word
// replacement. Values with no matching entry are returned unchanged.
func (m CorrectionMap) Apply(value string) string {
	if len(m) == 0 || value == "" {
		return value
	}
	if fixed, ok := m[LabelForm(value)]; ok {
		return fixed
	}

	words := strings.Fields(value)
	changed := false
	for i, w := range words {
		if fixed, ok := m[LabelForm(w)]; ok {
			words[i] = fixed
			changed = true
		}
	}
	if !changed {
		return value
	}
	return strings.Join(words, " ")
}
