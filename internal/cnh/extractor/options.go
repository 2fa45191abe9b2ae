package extractor

import "fmt"

// DateStrategy selects how birth and validity dates are assigned
type DateStrategy string

const (
	// DateByLabelDistance picks, for each date label, the closest date in
	// text-offset terms. Falls back to DatePositional when no label is present.
	DateByLabelDistance DateStrategy = "label_distance"
	// DatePositional treats the first date as birth and the second as validity.
	DatePositional DateStrategy = "positional"
)

// ParentageStrategy selects how the Filiação value is collected
type ParentageStrategy string

const (
	// ParentageStopAtDigit keeps digit-free candidates and stops at the first
	// token carrying a digit or a registration marker.
	ParentageStopAtDigit ParentageStrategy = "stop_at_digit"
	// ParentageFixedWindow always takes the next two tokens.
	ParentageFixedWindow ParentageStrategy = "fixed_window"
)

// ParseDateStrategy validates a strategy name. Empty selects the default.
func ParseDateStrategy(s string) (DateStrategy, error) {
	switch DateStrategy(s) {
	case "":
		return DateByLabelDistance, nil
	case DateByLabelDistance, DatePositional:
		return DateStrategy(s), nil
	}
	return "", fmt.Errorf("unknown date strategy %q", s)
}

// ParseParentageStrategy validates a strategy name. Empty selects the default.
func ParseParentageStrategy(s string) (ParentageStrategy, error) {
	switch ParentageStrategy(s) {
	case "":
		return ParentageStopAtDigit, nil
	case ParentageStopAtDigit, ParentageFixedWindow:
		return ParentageStrategy(s), nil
	}
	return "", fmt.Errorf("unknown parentage strategy %q", s)
}

// Options configures an Extractor
type Options struct {
	Corrections         CorrectionMap
	NameLabels          []string
	DateStrategy        DateStrategy
	MaxLabelDistance    int
	ParentageStrategy   ParentageStrategy
	MinParentageLength  int
	ParentageWindow     int
	DropShortTokens     bool
	ValidateCPFChecksum bool
}

// DefaultNameLabels are the Name label and misreads seen on scanned CNHs
var DefaultNameLabels = []string{"NOME", "N0ME", "NOMF", "NOME E SOBRENOME"}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Corrections:        CorrectionMap{},
		NameLabels:         DefaultNameLabels,
		DateStrategy:       DateByLabelDistance,
		MaxLabelDistance:   64,
		ParentageStrategy:  ParentageStopAtDigit,
		MinParentageLength: 5,
		ParentageWindow:    3,
	}
}

// withDefaults fills zero values from DefaultOptions
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Corrections == nil {
		o.Corrections = d.Corrections
	} else {
		o.Corrections = NewCorrectionMap(o.Corrections)
	}
	if len(o.NameLabels) == 0 {
		o.NameLabels = d.NameLabels
	}
	if o.DateStrategy == "" {
		o.DateStrategy = d.DateStrategy
	}
	if o.MaxLabelDistance <= 0 {
		o.MaxLabelDistance = d.MaxLabelDistance
	}
	if o.ParentageStrategy == "" {
		o.ParentageStrategy = d.ParentageStrategy
	}
	if o.MinParentageLength <= 0 {
		o.MinParentageLength = d.MinParentageLength
	}
	if o.ParentageWindow <= 0 {
		o.ParentageWindow = d.ParentageWindow
	}
	return o
}

// Overrides carries per-call adjustments on top of configured Options
type Overrides struct {
	DateStrategy      DateStrategy
	ParentageStrategy ParentageStrategy
	Corrections       map[string]string
}

// Apply returns a copy of o with the non-zero overrides applied.
// Correction entries are merged, with the override winning.
func (o Options) Apply(ov Overrides) Options {
	if ov.DateStrategy != "" {
		o.DateStrategy = ov.DateStrategy
	}
	if ov.ParentageStrategy != "" {
		o.ParentageStrategy = ov.ParentageStrategy
	}
	if len(ov.Corrections) > 0 {
		o.Corrections = o.Corrections.Merge(NewCorrectionMap(ov.Corrections))
	}
	return o
}
