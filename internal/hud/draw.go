package hud

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype/raster"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"
)

const circleSegments = 96

// canvas draws anti-aliased vector strokes onto an RGBA image.
type canvas struct {
	img     *image.RGBA
	r       *raster.Rasterizer
	painter *raster.RGBAPainter
}

func newCanvas(img *image.RGBA) *canvas {
	b := img.Bounds()
	r := raster.NewRasterizer(b.Dx(), b.Dy())
	r.UseNonZeroWinding = true
	return &canvas{img: img, r: r, painter: raster.NewRGBAPainter(img)}
}

func pt(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.Int26_6(math.Round(x * 64)), Y: fixed.Int26_6(math.Round(y * 64))}
}

func (c *canvas) stroke(path raster.Path, width float64, col color.Color) {
	c.r.Clear()
	c.r.AddStroke(path, fixed.Int26_6(math.Round(width*64)), raster.RoundCapper, raster.RoundJoiner)
	c.painter.SetColor(col)
	c.r.Rasterize(c.painter)
}

func (c *canvas) line(x0, y0, x1, y1, width float64, col color.Color) {
	var p raster.Path
	p.Start(pt(x0, y0))
	p.Add1(pt(x1, y1))
	c.stroke(p, width, col)
}

// polyline strokes connected segments through the given points.
func (c *canvas) polyline(points [][2]float64, width float64, col color.Color) {
	if len(points) < 2 {
		return
	}
	var p raster.Path
	p.Start(pt(points[0][0], points[0][1]))
	for _, q := range points[1:] {
		p.Add1(pt(q[0], q[1]))
	}
	c.stroke(p, width, col)
}

func (c *canvas) circle(cx, cy, radius, width float64, col color.Color) {
	var p raster.Path
	p.Start(pt(cx+radius, cy))
	for i := 1; i <= circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		p.Add1(pt(cx+radius*math.Cos(a), cy+radius*math.Sin(a)))
	}
	c.stroke(p, width, col)
}

// fillPolygon fills a closed polygon.
func (c *canvas) fillPolygon(points [][2]float64, col color.Color) {
	if len(points) < 3 {
		return
	}
	c.r.Clear()
	c.r.Start(pt(points[0][0], points[0][1]))
	for _, q := range points[1:] {
		c.r.Add1(pt(q[0], q[1]))
	}
	c.r.Add1(pt(points[0][0], points[0][1]))
	c.painter.SetColor(col)
	c.r.Rasterize(c.painter)
}

// fillRect blends a translucent rectangle over the image.
func (c *canvas) fillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Over)
}
