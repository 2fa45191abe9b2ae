package render

import (
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// ROI is a region of interest given as fractions of the page size, so the
// same calibration works at any zoom.
type ROI struct {
	Left   float64 `json:"left" mapstructure:"left"`
	Top    float64 `json:"top" mapstructure:"top"`
	Right  float64 `json:"right" mapstructure:"right"`
	Bottom float64 `json:"bottom" mapstructure:"bottom"`
}

// FullPage covers the whole bitmap
var FullPage = ROI{Left: 0, Top: 0, Right: 1, Bottom: 1}

// ParseROI parses "left,top,right,bottom"
func ParseROI(s string) (ROI, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ROI{}, fmt.Errorf("roi must have 4 comma separated values, got %d", len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ROI{}, fmt.Errorf("roi value %q: %w", p, err)
		}
		v[i] = f
	}

	roi := ROI{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}
	return roi, roi.Validate()
}

// IsZero reports whether no ROI was set
func (r ROI) IsZero() bool {
	return r == ROI{}
}

// Validate checks the fractions are inside the page and non-empty
func (r ROI) Validate() error {
	for _, f := range []float64{r.Left, r.Top, r.Right, r.Bottom} {
		if f < 0 || f > 1 {
			return fmt.Errorf("roi fractions must be within 0..1: %+v", r)
		}
	}
	if r.Left >= r.Right || r.Top >= r.Bottom {
		return fmt.Errorf("roi is empty: %+v", r)
	}
	return nil
}

// Rect converts the fractions to pixels within bounds
func (r ROI) Rect(bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	return image.Rect(
		bounds.Min.X+int(r.Left*w),
		bounds.Min.Y+int(r.Top*h),
		bounds.Min.X+int(r.Right*w),
		bounds.Min.Y+int(r.Bottom*h),
	).Intersect(bounds)
}

// Preprocess describes the image clean-up applied before recognition
type Preprocess struct {
	Upscale   float64 // resize factor applied after cropping, <= 1 disables
	Grayscale bool
	Contrast  float64 // percentage, -100..100
	Sharpen   float64 // gaussian sigma, 0 disables
}

// IsZero reports whether no preprocessing is requested
func (p Preprocess) IsZero() bool {
	return p == Preprocess{}
}

// Apply crops the PNG to roi and runs the preprocessing steps
func Apply(png []byte, roi ROI, pp Preprocess) ([]byte, error) {
	if (roi.IsZero() || roi == FullPage) && pp.IsZero() {
		return png, nil
	}

	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("%w: decode bitmap: %v", domain.ErrRenderFailed, err)
	}

	if !roi.IsZero() {
		if err := roi.Validate(); err != nil {
			return nil, err
		}
		rect := roi.Rect(img.Bounds())
		if rect.Empty() {
			return nil, fmt.Errorf("%w: roi %+v is empty for a %dx%d bitmap", domain.ErrRenderFailed, roi, img.Bounds().Dx(), img.Bounds().Dy())
		}
		img = imaging.Crop(img, rect)
	}

	if pp.Upscale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, int(float64(b.Dx())*pp.Upscale), 0, imaging.Lanczos)
	}
	if pp.Grayscale {
		img = imaging.Grayscale(img)
	}
	if pp.Contrast != 0 {
		img = imaging.AdjustContrast(img, pp.Contrast)
	}
	if pp.Sharpen > 0 {
		img = imaging.Sharpen(img, pp.Sharpen)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: encode bitmap: %v", domain.ErrRenderFailed, err)
	}
	return buf.Bytes(), nil
}
