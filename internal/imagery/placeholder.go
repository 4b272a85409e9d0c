package imagery

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

var (
	placeholderBackground = color.RGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff}
	placeholderHatch      = color.RGBA{R: 0x32, G: 0x32, B: 0x32, A: 0xff}
	placeholderMark       = color.RGBA{R: 0xd0, G: 0x20, B: 0x20, A: 0xff}
)

// Placeholder returns the image substituted for a frame whose imagery could
// not be fetched: a dark hatched field crossed out in red, unmistakable as
// real terrain. The output depends only on the size.
func Placeholder(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderBackground}, image.Point{}, draw.Src)

	spacing := max(min(width, height)/16, 8)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%spacing < spacing/4 {
				img.SetRGBA(x, y, placeholderHatch)
			}
		}
	}

	thickness := max(min(width, height)/100, 2)

	// Border
	for t := 0; t < thickness; t++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, t, placeholderMark)
			img.SetRGBA(x, height-1-t, placeholderMark)
		}
		for y := 0; y < height; y++ {
			img.SetRGBA(t, y, placeholderMark)
			img.SetRGBA(width-1-t, y, placeholderMark)
		}
	}

	// Diagonals
	if width > 1 && height > 1 {
		for x := 0; x < width; x++ {
			y := x * (height - 1) / (width - 1)
			for t := -thickness / 2; t <= thickness/2; t++ {
				setIfInside(img, x, y+t, placeholderMark)
				setIfInside(img, x, height-1-y+t, placeholderMark)
			}
		}
	}

	return img
}

// PlaceholderPNG returns Placeholder encoded as PNG.
func PlaceholderPNG(width, height int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Placeholder(width, height)); err != nil {
		return nil, fmt.Errorf("encoding placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func setIfInside(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Rect) {
		img.SetRGBA(x, y, c)
	}
}
