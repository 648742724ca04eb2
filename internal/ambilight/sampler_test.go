package ambilight

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSample_OutputLengthMatchesRequest(t *testing.T) {
	img := uniformImage(480, 1920, color.RGBA{10, 20, 30, 255})
	samples := Sample(img, 60)
	require.Len(t, samples, 60)
}

func TestSample_UniformImageYieldsUniformColor(t *testing.T) {
	img := uniformImage(480, 1920, color.RGBA{200, 100, 50, 255})
	samples := Sample(img, 60)
	for _, s := range samples {
		assert.Equal(t, RGB{200, 100, 50}, s)
	}
}

func TestSample_IsDeterministic(t *testing.T) {
	img := uniformImage(120, 480, color.RGBA{1, 2, 3, 255})
	first := Sample(img, 60)
	second := Sample(img, 60)
	assert.Equal(t, first, second)
}

func TestSampleGreyscale_ConvertsToLuminance(t *testing.T) {
	img := uniformImage(480, 1920, color.RGBA{255, 255, 255, 255})
	samples := SampleGreyscale(img, 60, 100)
	for _, s := range samples {
		assert.Equal(t, s.R, s.G)
		assert.Equal(t, s.G, s.B)
		assert.Equal(t, uint8(100), s.R)
	}
}

func TestPerimeterPoint_CoversAllFourEdges(t *testing.T) {
	w, h := 100, 200
	perimeter := 2 * (w + h)

	bx, by := perimeterPoint(0, w, h)
	assert.Equal(t, h-1, by)
	assert.Equal(t, 0, bx)

	rx, ry := perimeterPoint(float64(w), w, h)
	assert.Equal(t, w-1, rx)
	assert.Equal(t, h-1, ry)

	tx, ty := perimeterPoint(float64(w+h), w, h)
	assert.Equal(t, w-1, tx)
	assert.Equal(t, 0, ty)

	lx, ly := perimeterPoint(float64(2*w+h), w, h)
	assert.Equal(t, 0, lx)
	assert.Equal(t, 0, ly)

	assert.Equal(t, perimeter, 2*(w+h))
}
