// Package ambilight samples the edges of decoded video frames and drives
// the 60-LED RGB ring to match, independently of the LCD streaming path.
package ambilight

import (
	"image"
)

// RGB is an unmodified 8-bit-per-channel color triple.
type RGB struct {
	R, G, B uint8
}

// sampleWindow is the side length of the averaging window at each
// perimeter position.
const sampleWindow = 8

// Sample walks the perimeter of frame clockwise from the bottom-left
// corner, producing n evenly spaced samples: bottom edge left-to-right,
// right edge bottom-to-top, top edge right-to-left, left edge
// top-to-bottom. Each sample averages an 8x8 window clipped to the
// frame bounds. Pure and deterministic; performs no I/O.
func Sample(frame image.Image, n int) []RGB {
	bounds := frame.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	perimeter := 2 * (w + h)
	if perimeter == 0 || n == 0 {
		return make([]RGB, n)
	}
	step := float64(perimeter) / float64(n)

	out := make([]RGB, n)
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		cx, cy := perimeterPoint(pos, w, h)
		out[i] = averageWindow(frame, bounds, cx, cy)
	}
	return out
}

// SampleGreyscale is Sample followed by a luminance conversion: each
// triple is replaced by (y,y,y) where y = 0.299r + 0.587g + 0.114b,
// rescaled to [0, maxIntensity]. Used for low-glare ambient modes.
func SampleGreyscale(frame image.Image, n int, maxIntensity uint8) []RGB {
	samples := Sample(frame, n)
	for i, s := range samples {
		y := 0.299*float64(s.R) + 0.587*float64(s.G) + 0.114*float64(s.B)
		scaled := uint8(y / 255 * float64(maxIntensity))
		samples[i] = RGB{scaled, scaled, scaled}
	}
	return samples
}

// perimeterPoint maps a distance walked clockwise from the bottom-left
// corner (pos, in [0, 2*(w+h))) to a pixel coordinate.
func perimeterPoint(pos float64, w, h int) (int, int) {
	fw, fh := float64(w), float64(h)
	switch {
	case pos < fw:
		// bottom edge, left to right
		return int(pos), h - 1
	case pos < fw+fh:
		// right edge, bottom to top
		return w - 1, h - 1 - int(pos-fw)
	case pos < 2*fw+fh:
		// top edge, right to left
		return w - 1 - int(pos-fw-fh), 0
	default:
		// left edge, top to bottom
		return 0, int(pos - 2*fw - fh)
	}
}

// averageWindow averages pixel values in an 8x8 block centered at
// (cx, cy), clipped to bounds.
func averageWindow(frame image.Image, bounds image.Rectangle, cx, cy int) RGB {
	half := sampleWindow / 2
	x0, x1 := clip(cx-half, bounds.Min.X, bounds.Max.X), clip(cx+half, bounds.Min.X, bounds.Max.X)
	y0, y1 := clip(cy-half, bounds.Min.Y, bounds.Max.Y), clip(cy+half, bounds.Min.Y, bounds.Max.Y)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}

	var rSum, gSum, bSum, count uint64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r, g, b, _ := frame.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			count++
		}
	}
	if count == 0 {
		return RGB{}
	}
	return RGB{uint8(rSum / count), uint8(gSum / count), uint8(bSum / count)}
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
