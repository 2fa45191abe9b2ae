package render_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/render"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func decode(t *testing.T, png []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	return img
}

func TestParseROI(t *testing.T) {
	roi, err := render.ParseROI("0.1, 0.2,0.9,0.5")
	require.NoError(t, err)
	assert.Equal(t, render.ROI{Left: 0.1, Top: 0.2, Right: 0.9, Bottom: 0.5}, roi)

	for _, bad := range []string{"", "0,0,1", "a,0,1,1", "0,0,1.5,1", "0.5,0,0.4,1", "0,0.3,1,0.3"} {
		_, err := render.ParseROI(bad)
		assert.Error(t, err, bad)
	}
}

func TestROI_Rect(t *testing.T) {
	roi := render.ROI{Left: 0.25, Top: 0.5, Right: 0.75, Bottom: 1}

	assert.Equal(t, image.Rect(25, 100, 75, 200), roi.Rect(image.Rect(0, 0, 100, 200)))
	assert.Equal(t, image.Rect(60, 60, 110, 110), roi.Rect(image.Rect(35, 10, 135, 110)))
	assert.Equal(t, image.Rect(0, 0, 100, 200), render.FullPage.Rect(image.Rect(0, 0, 100, 200)))
}

func TestApply_NoopReturnsInput(t *testing.T) {
	png := testPNG(t, 10, 10)

	out, err := render.Apply(png, render.ROI{}, render.Preprocess{})
	require.NoError(t, err)
	assert.Equal(t, png, out)

	out, err = render.Apply(png, render.FullPage, render.Preprocess{})
	require.NoError(t, err)
	assert.Equal(t, png, out)
}

func TestApply_Crop(t *testing.T) {
	png := testPNG(t, 200, 100)

	out, err := render.Apply(png, render.ROI{Left: 0.5, Top: 0, Right: 1, Bottom: 0.5}, render.Preprocess{})
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	// top-left pixel of the crop was x=100,y=0 in the source
	r, g, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	assert.Equal(t, uint32(100), r>>8)
	assert.Equal(t, uint32(0), g>>8)
}

func TestApply_Preprocess(t *testing.T) {
	png := testPNG(t, 40, 20)

	out, err := render.Apply(png, render.ROI{}, render.Preprocess{Upscale: 2, Grayscale: true, Contrast: 20, Sharpen: 1})
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, 80, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())

	r, g, b, _ := img.At(10, 10).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestApply_Errors(t *testing.T) {
	_, err := render.Apply([]byte("not an image"), render.ROI{Left: 0, Top: 0, Right: 0.5, Bottom: 0.5}, render.Preprocess{})
	assert.Error(t, err)

	_, err = render.Apply(testPNG(t, 10, 10), render.ROI{Left: 0.5, Top: 0, Right: 0.2, Bottom: 1}, render.Preprocess{})
	assert.Error(t, err)
}
