package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/pipeline"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
	"github.com/cnhflow/cnhflow-backend/pkg/config"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
)

func TestExtractorOptions(t *testing.T) {
	opts, err := pipeline.ExtractorOptions(config.ExtractionConfig{
		DateStrategy:        "positional",
		ParentageStrategy:   "fixed_window",
		MinParentageLength:  4,
		ValidateCPFChecksum: true,
		Corrections:         map[string]string{"sant0s": "SANTOS"},
	})
	require.NoError(t, err)

	assert.Equal(t, extractor.DatePositional, opts.DateStrategy)
	assert.Equal(t, extractor.ParentageFixedWindow, opts.ParentageStrategy)
	assert.Equal(t, 4, opts.MinParentageLength)
	assert.True(t, opts.ValidateCPFChecksum)
	assert.Equal(t, "SANTOS", opts.Corrections.Apply("SANT0S"))
}

func TestExtractorOptions_UnknownStrategy(t *testing.T) {
	_, err := pipeline.ExtractorOptions(config.ExtractionConfig{DateStrategy: "nearest"})
	assert.Error(t, err)

	_, err = pipeline.ExtractorOptions(config.ExtractionConfig{ParentageStrategy: "all"})
	assert.Error(t, err)
}

func TestDefaultROI(t *testing.T) {
	roi, err := pipeline.DefaultROI(config.OCRConfig{})
	require.NoError(t, err)
	assert.True(t, roi.IsZero())

	roi, err = pipeline.DefaultROI(config.OCRConfig{ROI: "0,0.1,1,0.9"})
	require.NoError(t, err)
	assert.Equal(t, render.ROI{Left: 0, Top: 0.1, Right: 1, Bottom: 0.9}, roi)

	_, err = pipeline.DefaultROI(config.OCRConfig{ROI: "0.5,0,0.2,1"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	cfg := config.OCRConfig{Engine: pipeline.EngineTSV, Language: "por"}

	reg, closer, err := pipeline.Registry([]string{"textlayer", "ocr"}, cfg, logger.Nop())
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, []string{"textlayer", "ocr:tesseract_tsv"}, reg.Names())
}

func TestRegistry_Errors(t *testing.T) {
	tests := []struct {
		name      string
		producers []string
		engine    string
	}{
		{"no producers", nil, "tsv"},
		{"unknown producer", []string{"textlayer", "magic"}, "tsv"},
		{"unknown engine", []string{"ocr"}, "cloud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := pipeline.Registry(tt.producers, config.OCRConfig{Engine: tt.engine}, logger.Nop())
			assert.Error(t, err)
		})
	}
}

func TestRecognizer_EngineFallsBackWithoutBuildTag(t *testing.T) {
	rec, closer, err := pipeline.Recognizer(config.OCRConfig{Engine: pipeline.EngineInProc}, logger.Nop())
	require.NoError(t, err)
	defer closer.Close()

	// either the in-process engine or the tsv fallback, depending on build tags
	assert.Contains(t, []string{"tesseract_engine", "tesseract_tsv"}, rec.Name())
}
