// Command cnh-extract reads one CNH document and prints the extracted fields
// as JSON.
//
//	cnh-extract --file doc.pdf [--page 1] [--zoom 3] [--engine auto|textlayer|tsv|engine]
//	            [--date-strategy label_distance|positional] [--roi l,t,r,b]
//	            [--csv out.csv] [--xlsx out.xlsx]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/export"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/pipeline"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/processor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/service"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/storage"
	"github.com/cnhflow/cnhflow-backend/pkg/config"
	"github.com/cnhflow/cnhflow-backend/pkg/errors"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
)

const (
	exitOK = iota
	exitUsage
	exitFailed
)

// Engine choices for --engine
const (
	engineAuto      = "auto"
	engineTextLayer = "textlayer"
	engineTSV       = "tsv"
	engineInProc    = "engine"
)

type options struct {
	file              string
	page              int
	zoom              float64
	engine            string
	dateStrategy      string
	parentageStrategy string
	roi               string
	csvOut            string
	xlsxOut           string
	logLevel          string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := pflag.NewFlagSet("cnh-extract", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&o.file, "file", "f", "", "CNH document (PDF, PNG or JPEG)")
	fs.IntVar(&o.page, "page", 1, "page to read, 1-based")
	fs.Float64Var(&o.zoom, "zoom", 0, "render magnification for OCR (default from config)")
	fs.StringVar(&o.engine, "engine", engineAuto, "token source: auto, textlayer, tsv or engine")
	fs.StringVar(&o.dateStrategy, "date-strategy", "", "label_distance or positional (default from config)")
	fs.StringVar(&o.parentageStrategy, "parentage-strategy", "", "stop_at_digit or fixed_window (default from config)")
	fs.StringVar(&o.roi, "roi", "", "region of interest as fractions: left,top,right,bottom")
	fs.StringVar(&o.csvOut, "csv", "", "also write the result as CSV to this path")
	fs.StringVar(&o.xlsxOut, "xlsx", "", "also write the result as XLSX to this path")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level written to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.file == "" {
		return nil, fmt.Errorf("--file is required")
	}
	switch o.engine {
	case engineAuto, engineTextLayer, engineTSV, engineInProc:
	default:
		return nil, fmt.Errorf("--engine must be one of auto, textlayer, tsv, engine")
	}
	return &o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if err != pflag.ErrHelp {
			fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		}
		return exitUsage
	}

	cfg, err := config.Load(config.ServiceName)
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitUsage
	}
	sep, err := cfg.Extraction.Separator()
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitUsage
	}
	log := logger.NewWithWriter(stderr, "cnh-extract", config.EnvDevelopment).SetLevel(o.logLevel)

	req, err := buildRequest(o)
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitUsage
	}

	producers := cfg.Extraction.Producers
	switch o.engine {
	case engineTextLayer:
		producers = []string{pipeline.ProducerTextLayer}
	case engineTSV:
		producers = []string{pipeline.ProducerOCR}
		cfg.OCR.Engine = pipeline.EngineTSV
	case engineInProc:
		producers = []string{pipeline.ProducerOCR}
		cfg.OCR.Engine = pipeline.EngineInProc
	}

	opts, err := pipeline.ExtractorOptions(cfg.Extraction)
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitUsage
	}
	registry, engine, err := pipeline.Registry(producers, cfg.OCR, log)
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitUsage
	}
	defer engine.Close()

	store := storage.NewTempStorage(time.Minute)
	defer store.Close()

	defaultROI, err := pipeline.DefaultROI(cfg.OCR)
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitUsage
	}
	svc := service.NewService(registry, extractor.New(opts), store, log).
		WithFingerprintKey(cfg.Storage.FingerprintKey).
		WithTimeout(cfg.OCR.Timeout).
		WithDocumentDefaults(cfg.OCR.Zoom, defaultROI)

	res, err := svc.Extract(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %s\n", describe(err))
		return exitFailed
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitFailed
	}

	if err := writeExports(o, sep, res); err != nil {
		fmt.Fprintf(stderr, "cnh-extract: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func buildRequest(o *options) (service.Request, error) {
	data, err := os.ReadFile(o.file)
	if err != nil {
		return service.Request{}, err
	}

	doc := processor.Document{Data: data, Page: o.page, Zoom: o.zoom}
	if o.roi != "" {
		doc.ROI, err = render.ParseROI(o.roi)
		if err != nil {
			return service.Request{}, err
		}
	}

	var ov extractor.Overrides
	if o.dateStrategy != "" {
		if ov.DateStrategy, err = extractor.ParseDateStrategy(o.dateStrategy); err != nil {
			return service.Request{}, err
		}
	}
	if o.parentageStrategy != "" {
		if ov.ParentageStrategy, err = extractor.ParseParentageStrategy(o.parentageStrategy); err != nil {
			return service.Request{}, err
		}
	}

	return service.Request{
		Document: doc,
		// the operator running the tool is the one holding consent
		ConsentTimestamp: time.Now().UTC(),
		UserID:           "cli",
		Overrides:        ov,
	}, nil
}

func writeExports(o *options, sep rune, res *domain.ExtractionResult) error {
	if o.csvOut != "" {
		f, err := os.Create(o.csvOut)
		if err != nil {
			return err
		}
		if err := export.WriteCSV(f, sep, res); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if o.xlsxOut != "" {
		data, err := export.XLSX(res)
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.xlsxOut, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// describe turns pipeline errors into a message for the operator
func describe(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}

	switch domain.Code(err) {
	case "NO_TEXT":
		return fmt.Sprintf("no text found in the document (%v)", err)
	case "EXTRACTION_FAILED":
		return fmt.Sprintf("OCR failed, check that pdftoppm and tesseract are installed (%v)", err)
	case "INVALID_DOCUMENT":
		return fmt.Sprintf("the document could not be read (%v)", err)
	}
	return err.Error()
}
