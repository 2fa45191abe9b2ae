package render

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/pkg/runner"
)

const (
	// DefaultZoom is the magnification used when the caller gives none
	DefaultZoom = 3.0
	// pointsPerInch maps a zoom factor to pdftoppm's DPI
	pointsPerInch = 72.0
	maxZoom       = 10.0
)

// Renderer turns one page of a PDF into a PNG bitmap
type Renderer interface {
	Render(ctx context.Context, doc []byte, page int, zoom float64) ([]byte, error)
}

// PdftoppmRenderer renders pages with poppler's pdftoppm
type PdftoppmRenderer struct {
	runner runner.Runner
	bin    string
	log    zerolog.Logger
}

// NewPdftoppmRenderer creates a renderer. An empty bin means "pdftoppm" on PATH.
func NewPdftoppmRenderer(r runner.Runner, bin string, log zerolog.Logger) *PdftoppmRenderer {
	if bin == "" {
		bin = "pdftoppm"
	}
	return &PdftoppmRenderer{
		runner: r,
		bin:    bin,
		log:    log.With().Str("component", "pdftoppm").Logger(),
	}
}

// DPI converts a zoom factor to pdftoppm resolution
func DPI(zoom float64) int {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return int(math.Round(pointsPerInch * min(zoom, maxZoom)))
}

// Render writes doc to a temp dir, renders the page and returns the PNG bytes
func (r *PdftoppmRenderer) Render(ctx context.Context, doc []byte, page int, zoom float64) ([]byte, error) {
	if page < 1 {
		page = 1
	}

	tmpDir, err := os.MkdirTemp("", "cnh-render-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.log.Warn().Err(err).Str("dir", tmpDir).Msg("failed to remove temp dir")
		}
	}()

	in := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	p := strconv.Itoa(page)
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f P -l P -r DPI -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.bin, "-f", p, "-l", p, "-r", strconv.Itoa(DPI(zoom)), "-png", in, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", domain.ErrRenderFailed, err, runner.Truncate(string(errb), 512))
	}

	// output is prefix-N.png, N zero padded to the page count width
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no images", domain.ErrRenderFailed)
	}

	png, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	r.log.Debug().Int("page", page).Int("dpi", DPI(zoom)).Int("bytes", len(png)).Msg("page rendered")
	return png, nil
}
