// Package pipeline assembles the extraction stack from configuration. It is
// shared by the HTTP service and the command line tool.
package pipeline

import (
	"fmt"
	"io"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/processor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/recognize"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
	"github.com/cnhflow/cnhflow-backend/pkg/config"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
	"github.com/cnhflow/cnhflow-backend/pkg/runner"
)

// Producer names accepted in extraction.producers
const (
	ProducerTextLayer = "textlayer"
	ProducerOCR       = "ocr"
)

// OCR engines accepted in ocr.engine
const (
	EngineTSV    = "tsv"
	EngineInProc = "engine"
)

// ExtractorOptions converts the extraction section into extractor options
func ExtractorOptions(cfg config.ExtractionConfig) (extractor.Options, error) {
	dates, err := extractor.ParseDateStrategy(cfg.DateStrategy)
	if err != nil {
		return extractor.Options{}, err
	}
	parentage, err := extractor.ParseParentageStrategy(cfg.ParentageStrategy)
	if err != nil {
		return extractor.Options{}, err
	}

	return extractor.Options{
		Corrections:         extractor.NewCorrectionMap(cfg.Corrections),
		NameLabels:          cfg.NameLabels,
		DateStrategy:        dates,
		MaxLabelDistance:    cfg.MaxLabelDistance,
		ParentageStrategy:   parentage,
		MinParentageLength:  cfg.MinParentageLength,
		ParentageWindow:     cfg.ParentageWindow,
		DropShortTokens:     cfg.DropShortTokens,
		ValidateCPFChecksum: cfg.ValidateCPFChecksum,
	}, nil
}

// Preprocess converts the image clean-up settings
func Preprocess(cfg config.OCRConfig) render.Preprocess {
	return render.Preprocess{
		Upscale:   cfg.Upscale,
		Grayscale: cfg.Grayscale,
		Contrast:  cfg.Contrast,
		Sharpen:   cfg.Sharpen,
	}
}

// DefaultROI parses ocr.roi. Empty means the whole page.
func DefaultROI(cfg config.OCRConfig) (render.ROI, error) {
	if cfg.ROI == "" {
		return render.ROI{}, nil
	}
	roi, err := render.ParseROI(cfg.ROI)
	if err != nil {
		return render.ROI{}, fmt.Errorf("ocr.roi: %w", err)
	}
	return roi, nil
}

// Registry builds the token producers named in producers, in that order.
// The returned closer releases the in-process engine when one was created.
func Registry(producers []string, cfg config.OCRConfig, log *logger.Logger) (*processor.Registry, io.Closer, error) {
	var (
		list   []processor.TokenProducer
		closer io.Closer = nopCloser{}
	)

	for _, name := range producers {
		switch name {
		case ProducerTextLayer:
			list = append(list, processor.NewTextLayerProducer(cfg.SegmentGapFactor, log.Logger))

		case ProducerOCR:
			rec, c, err := Recognizer(cfg, log)
			if err != nil {
				return nil, nil, err
			}
			closer = c
			renderer := render.NewPdftoppmRenderer(runner.NewExecRunner(log.Logger), cfg.PdftoppmBin, log.Logger)
			list = append(list, processor.NewOCRProducer(renderer, rec, Preprocess(cfg), log.Logger))

		default:
			return nil, nil, fmt.Errorf("unknown producer %q", name)
		}
	}

	if len(list) == 0 {
		return nil, nil, fmt.Errorf("no producers configured")
	}
	return processor.NewRegistry(list...), closer, nil
}

// Recognizer builds the configured OCR engine. The in-process engine falls
// back to the tesseract TSV runner when the binary lacks the ocr build tag.
func Recognizer(cfg config.OCRConfig, log *logger.Logger) (recognize.Recognizer, io.Closer, error) {
	rc := recognize.Config{
		Binary:      cfg.TesseractBin,
		Language:    cfg.Language,
		PSM:         cfg.PSM,
		TessdataDir: cfg.TessdataDir,
		GapFactor:   cfg.SegmentGapFactor,
	}
	tsv := func() recognize.Recognizer {
		return recognize.NewTSVRecognizer(runner.NewExecRunner(log.Logger), rc, log.Logger)
	}

	switch cfg.Engine {
	case "", EngineTSV:
		return tsv(), nopCloser{}, nil
	case EngineInProc:
		eng, err := recognize.NewEngineRecognizer(rc, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("in-process OCR unavailable, using tesseract binary")
			return tsv(), nopCloser{}, nil
		}
		return eng, eng, nil
	}
	return nil, nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
