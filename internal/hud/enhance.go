package hud

import (
	"image"
	"math"
)

const (
	// For a 20x20 image:
	// - 2% percentile  = 8th sample
	// - 98% percentile = 392nd sample
	minimumPixelCount = 400

	lowPercentile  = 2
	highPercentile = 98
	minStretchSpan = 64 // Narrower histograms are left alone to avoid amplifying noise

	saturationBoost = 1.1
)

// LuminanceBounds are the percentile limits of an image's luminance histogram.
type LuminanceBounds struct {
	Low  uint8 // 2nd percentile luminance
	High uint8 // 98th percentile luminance
}

// luminanceHistogram counts pixels per 8-bit luminance level.
type luminanceHistogram struct {
	bins  [256]uint64
	total uint64
}

func newLuminanceHistogram(img *image.RGBA) *luminanceHistogram {
	h := &luminanceHistogram{}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			h.bins[luma(row[i], row[i+1], row[i+2])]++
			h.total++
		}
	}
	return h
}

// bounds returns the low and high percentile levels, or false when the image
// is too small for percentiles to be meaningful.
func (h *luminanceHistogram) bounds() (LuminanceBounds, bool) {
	if h.total < minimumPixelCount {
		return LuminanceBounds{Low: 0, High: 255}, false
	}

	targetLow := h.total * lowPercentile / 100
	targetHigh := h.total * (100 - highPercentile) / 100

	var lb LuminanceBounds
	var count uint64
	for level := 0; level < 256; level++ {
		count += h.bins[level]
		if count > targetLow {
			lb.Low = uint8(level)
			break
		}
	}

	count = 0
	for level := 255; level >= 0; level-- {
		count += h.bins[level]
		if count > targetHigh {
			lb.High = uint8(level)
			break
		}
	}
	return lb, true
}

// Enhance stretches contrast between the 2nd and 98th luminance percentiles
// and lifts color saturation slightly, in place. Flat images are untouched.
func Enhance(img *image.RGBA) LuminanceBounds {
	lb, ok := newLuminanceHistogram(img).bounds()
	if !ok || int(lb.High)-int(lb.Low) < minStretchSpan || (lb.Low == 0 && lb.High == 255) {
		return lb
	}

	var lut [256]uint8
	span := float64(lb.High) - float64(lb.Low)
	for i := range lut {
		v := (float64(i) - float64(lb.Low)) * 255 / span
		lut[i] = clampByte(v)
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			r, g, bl := float64(lut[row[i]]), float64(lut[row[i+1]]), float64(lut[row[i+2]])
			l := 0.299*r + 0.587*g + 0.114*bl
			row[i] = clampByte(l + (r-l)*saturationBoost)
			row[i+1] = clampByte(l + (g-l)*saturationBoost)
			row[i+2] = clampByte(l + (bl-l)*saturationBoost)
		}
	}
	return lb
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

func clampByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
