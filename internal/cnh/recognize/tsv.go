package recognize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/pkg/runner"
)

// tesseract TSV columns
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

const wordLevel = 5

// TSVRecognizer runs the tesseract binary in TSV mode
type TSVRecognizer struct {
	runner runner.Runner
	cfg    Config
	log    zerolog.Logger
}

// NewTSVRecognizer creates a recognizer backed by the tesseract CLI
func NewTSVRecognizer(r runner.Runner, cfg Config, log zerolog.Logger) *TSVRecognizer {
	return &TSVRecognizer{
		runner: r,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "tesseract_tsv").Logger(),
	}
}

func (t *TSVRecognizer) Name() string {
	return "tesseract_tsv"
}

// Recognize writes the bitmap to a temp file and parses tesseract's TSV output
func (t *TSVRecognizer) Recognize(ctx context.Context, png []byte) ([]domain.Token, error) {
	tmpDir, err := os.MkdirTemp("", "cnh-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecognitionFailed, err)
	}
	defer os.RemoveAll(tmpDir)

	img := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(img, png, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecognitionFailed, err)
	}

	// tesseract <img> stdout -l <lang> --psm N [--tessdata-dir D] tsv
	args := []string{img, "stdout", "-l", t.cfg.Language, "--psm", strconv.Itoa(t.cfg.PSM)}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract: %v: %s", domain.ErrRecognitionFailed, err, runner.Truncate(string(errb), 512))
	}

	words, err := ParseTSV(string(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecognitionFailed, err)
	}

	tokens := Segment(words, t.cfg.GapFactor)
	t.log.Debug().Int("words", len(words)).Int("tokens", len(tokens)).Msg("page recognized")
	return tokens, nil
}

// ParseTSV reads the word rows of tesseract TSV output
func ParseTSV(out string) ([]Word, error) {
	lines := strings.Split(out, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "level") {
		return nil, fmt.Errorf("unexpected tsv header")
	}

	var words []Word
	for n, ln := range lines[1:] {
		ln = strings.TrimRight(ln, "\r")
		if ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < tsvColumns {
			// empty text column is dropped by some versions
			continue
		}
		if cols[colLevel] != strconv.Itoa(wordLevel) {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[colText:], "\t"))
		if text == "" {
			continue
		}

		ints := make([]int, colConf)
		for c := colLevel; c < colConf; c++ {
			v, err := strconv.Atoi(cols[c])
			if err != nil {
				return nil, fmt.Errorf("tsv line %d column %d: %w", n+2, c, err)
			}
			ints[c] = v
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d conf: %w", n+2, err)
		}
		if conf < 0 {
			conf = 0
		}

		left, top := float64(ints[colLeft]), float64(ints[colTop])
		words = append(words, Word{
			Text: text,
			Box: domain.BoundingBox{
				X0: left,
				Y0: top,
				X1: left + float64(ints[colWidth]),
				Y1: top + float64(ints[colHeight]),
			},
			Confidence: min(conf/100, 1),
			Block:      ints[colBlock],
			Paragraph:  ints[colPar],
			Line:       ints[colLine],
		})
	}
	return words, nil
}
