// Package hud composites a heads-up-display telemetry overlay onto imagery.
package hud

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	_ "golang.org/x/image/webp"

	"github.com/roman-kulish/drone-flyover/internal/geo"
	"github.com/roman-kulish/drone-flyover/internal/telemetry"
)

const (
	dpi = 72.0 // One point per pixel

	minFontSize = 8.0

	// Web Mercator ground resolution at zoom 0 on the equator, meters per pixel
	metersPerPixelZoom0 = 156543.03392
)

// FrameInfo is everything the overlay shows besides the imagery itself.
type FrameInfo struct {
	Index     int // One-based frame number
	Total     int
	Label     string
	Telemetry telemetry.Telemetry
}

func (fi *FrameInfo) validate() error {
	if fi.Total <= 0 {
		return fmt.Errorf("total frame count must be positive: %d given", fi.Total)
	}
	if fi.Index < 1 || fi.Index > fi.Total {
		return fmt.Errorf("frame index %d outside 1..%d", fi.Index, fi.Total)
	}
	if err := fi.Telemetry.Validate(); err != nil {
		return err
	}
	return nil
}

type Option func(*Compositor)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger.With(slog.String("component", "hud"))
	}
}

// Compositor renders HUD overlays. It holds no per-frame state, so frames can
// be composited in any order with identical results.
type Compositor struct {
	style   Style
	palette Palette
	font    *truetype.Font
	logger  *slog.Logger
}

// NewCompositor creates a compositor with the given style. Zero style fields
// fall back to defaults.
func NewCompositor(style Style, opts ...Option) (*Compositor, error) {
	// Set defaults for zero values
	if style.Theme == "" {
		style.Theme = ClassicTheme
	}
	if style.FontScale == 0 {
		style.FontScale = DefaultFontScale
	}
	if style.LineScale == 0 {
		style.LineScale = DefaultLineScale
	}
	if style.PanelOpacity == 0 {
		style.PanelOpacity = DefaultPanelOpacity
	}
	if err := style.Validate(); err != nil {
		return nil, err
	}

	palette, err := resolvePalette(style)
	if err != nil {
		return nil, fmt.Errorf("resolving palette: %w", err)
	}

	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	c := &Compositor{
		style:   style,
		palette: palette,
		font:    parsedFont,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Style returns the effective style, defaults applied.
func (c *Compositor) Style() Style { return c.style }

// Composite decodes the source imagery, draws the overlay and returns the
// frame encoded as PNG. Failures are reported as *CompositeError.
func (c *Compositor) Composite(src []byte, info FrameInfo) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &CompositeError{Index: info.Index, Err: fmt.Errorf("decoding source image: %w", err)}
	}

	out, err := c.Render(img, info)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err = enc.Encode(&buf, out); err != nil {
		return nil, &CompositeError{Index: info.Index, Err: fmt.Errorf("encoding frame: %w", err)}
	}
	return buf.Bytes(), nil
}

// Render draws the overlay over a copy of src. Layers are stacked in a fixed
// order: imagery, then graphics, then text.
func (c *Compositor) Render(src image.Image, info FrameInfo) (*image.RGBA, error) {
	if err := info.validate(); err != nil {
		return nil, &CompositeError{Index: info.Index, Err: err}
	}
	if src.Bounds().Empty() {
		return nil, &CompositeError{Index: info.Index, Err: errors.New("source image is empty")}
	}

	img := c.background(src)
	if c.style.Enhance {
		lb := Enhance(img)
		c.logger.Debug("contrast stretched", slog.Int("frame", info.Index), slog.Int("low", int(lb.Low)), slog.Int("high", int(lb.High)))
	}

	ov, err := c.newOverlay(img, info)
	if err != nil {
		return nil, &CompositeError{Index: info.Index, Err: err}
	}
	defer ov.Close()

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing panels", ov.drawPanels},
		{"drawing corner brackets", ov.drawBrackets},
		{"drawing range rings", ov.drawRangeRings},
		{"drawing reticle", ov.drawReticle},
		{"drawing compass", ov.drawCompass},
		{"drawing telemetry", ov.drawTelemetry},
		{"drawing heading", ov.drawHeading},
		{"drawing frame counter", ov.drawFrameCounter},
		{"drawing target label", ov.drawTargetLabel},
		{"drawing status bar", ov.drawStatusBar},
		{"drawing failure banner", ov.drawFailureBanner},
	}
	for _, op := range ops {
		if err = op.fn(); err != nil {
			return nil, &CompositeError{Index: info.Index, Err: fmt.Errorf("%s: %w", op.msg, err)}
		}
	}

	return img, nil
}

// background converts src to RGBA at the output size.
func (c *Compositor) background(src image.Image) *image.RGBA {
	sb := src.Bounds()
	w, h := c.style.Width, c.style.Height
	if w == 0 {
		w = sb.Dx()
	}
	if h == 0 {
		h = sb.Dy()
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(img, img.Bounds(), src, sb.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(img, img.Bounds(), src, sb, draw.Src, nil)
	}
	return img
}

// overlay carries the per-frame drawing state. Every position and size is
// derived from the image dimensions.
type overlay struct {
	img     *image.RGBA
	canvas  *canvas
	context *freetype.Context
	face    font.Face
	palette Palette
	style   Style
	info    FrameInfo

	w, h       float64
	unit       float64 // Shorter image side
	lineWidth  float64
	fontSize   float64
	lineHeight int
	ascent     int
	margin     float64
}

func (c *Compositor) newOverlay(img *image.RGBA, info FrameInfo) (*overlay, error) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	unit := math.Min(w, h)
	size := math.Max(minFontSize, math.Round(unit*c.style.FontScale))

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(c.font)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetClip(b)
	ctx.SetDst(img)

	face := truetype.NewFace(c.font, &truetype.Options{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingNone,
	})
	metrics := face.Metrics()

	return &overlay{
		img:        img,
		canvas:     newCanvas(img),
		context:    ctx,
		face:       face,
		palette:    c.palette,
		style:      c.style,
		info:       info,
		w:          w,
		h:          h,
		unit:       unit,
		lineWidth:  math.Max(1, unit*c.style.LineScale),
		fontSize:   size,
		lineHeight: (metrics.Ascent + metrics.Descent).Round() + int(size*0.25),
		ascent:     metrics.Ascent.Round(),
		margin:     unit * 0.04,
	}, nil
}

func (o *overlay) Close() error {
	if o.face != nil {
		return o.face.Close()
	}
	return nil
}

func (o *overlay) textWidth(s string) int {
	return font.MeasureString(o.face, s).Round()
}

// text draws s with its baseline at (x, y) over a one pixel drop shadow.
func (o *overlay) text(s string, x, y int, col color.Color) error {
	shadow := max(1, int(o.fontSize/14))
	o.context.SetSrc(image.NewUniform(o.palette.Shadow))
	if _, err := o.context.DrawString(s, freetype.Pt(x+shadow, y+shadow)); err != nil {
		return err
	}
	o.context.SetSrc(image.NewUniform(col))
	_, err := o.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (o *overlay) telemetryLines() []string {
	t := o.info.Telemetry
	lines := []string{
		fmt.Sprintf("ALT  %s", humanize.SIWithDigits(t.AltitudeM, 1, "m")),
		fmt.Sprintf("SPD  %.1f m/s", t.SpeedMPS),
		fmt.Sprintf("HDG  %03.0f° %s", math.Floor(t.HeadingDeg), geo.Cardinal(t.HeadingDeg)),
		fmt.Sprintf("LAT  %.5f", t.Latitude),
		fmt.Sprintf("LON  %.5f", t.Longitude),
		fmt.Sprintf("T+   %s", formatOffset(t.TimestampOffsetS)),
	}
	if t.Zoom > 0 {
		lines = append(lines, fmt.Sprintf("ZOOM %d", t.Zoom))
	}
	return lines
}

func (o *overlay) panelRect() image.Rectangle {
	lines := len(o.telemetryLines()) + 1
	pad := int(o.margin / 2)
	x0, y0 := int(o.margin), int(o.margin)
	width := o.textWidth("LON  -180.00000") + 2*pad
	return image.Rect(x0, y0, x0+width, y0+lines*o.lineHeight+2*pad)
}

func (o *overlay) statusBarRect() image.Rectangle {
	barHeight := o.lineHeight + int(o.margin/2)
	return image.Rect(0, int(o.h)-barHeight, int(o.w), int(o.h))
}

func (o *overlay) drawPanels() error {
	o.canvas.fillRect(o.panelRect(), withAlpha(o.palette.Panel, o.style.PanelOpacity))
	o.canvas.fillRect(o.statusBarRect(), withAlpha(o.palette.Panel, o.style.PanelOpacity))
	return nil
}

func (o *overlay) drawBrackets() error {
	length := o.unit * 0.08
	inset := o.unit * 0.02
	col := o.palette.Primary

	corners := []struct{ x, y, dx, dy float64 }{
		{inset, inset, 1, 1},
		{o.w - inset, inset, -1, 1},
		{inset, o.h - inset, 1, -1},
		{o.w - inset, o.h - inset, -1, -1},
	}
	for _, c := range corners {
		o.canvas.polyline([][2]float64{
			{c.x, c.y + c.dy*length},
			{c.x, c.y},
			{c.x + c.dx*length, c.y},
		}, o.lineWidth, col)
	}
	return nil
}

func (o *overlay) drawRangeRings() error {
	cx, cy := o.w/2, o.h/2
	col := withAlpha(o.palette.Primary, 0.6)

	mpp := metersPerPixel(o.info.Telemetry.Latitude, o.info.Telemetry.Zoom)
	for _, f := range []float64{0.18, 0.32} {
		r := o.unit * f
		o.canvas.circle(cx, cy, r, o.lineWidth*0.6, col)

		if mpp > 0 {
			label := humanize.SIWithDigits(r*mpp, 0, "m")
			if err := o.text(label, int(cx+r*0.72)+2, int(cy-r*0.72)-2, o.palette.Primary); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *overlay) drawReticle() error {
	cx, cy := o.w/2, o.h/2
	r := o.unit * 0.05
	gap := o.unit * 0.015
	reach := o.unit * 0.09
	col := o.palette.Warning

	o.canvas.circle(cx, cy, r, o.lineWidth, col)
	o.canvas.line(cx-reach, cy, cx-gap, cy, o.lineWidth, col)
	o.canvas.line(cx+gap, cy, cx+reach, cy, o.lineWidth, col)
	o.canvas.line(cx, cy-reach, cx, cy-gap, o.lineWidth, col)
	o.canvas.line(cx, cy+gap, cx, cy+reach, o.lineWidth, col)
	return nil
}

// compassGeometry returns the compass center and radius, top center.
func (o *overlay) compassGeometry() (cx, cy, r float64) {
	r = o.unit * 0.07
	return o.w / 2, o.margin + r, r
}

func (o *overlay) drawCompass() error {
	cx, cy, r := o.compassGeometry()
	col := o.palette.Primary

	o.canvas.circle(cx, cy, r, o.lineWidth*0.75, col)
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		inner := r * 0.85
		if i%2 == 0 {
			inner = r * 0.7
		}
		o.canvas.line(cx+inner*math.Sin(a), cy-inner*math.Cos(a), cx+r*math.Sin(a), cy-r*math.Cos(a), o.lineWidth*0.75, col)
	}

	// Heading needle: a triangle pointing along the heading.
	a := o.info.Telemetry.HeadingDeg * math.Pi / 180
	tip := [2]float64{cx + r*0.8*math.Sin(a), cy - r*0.8*math.Cos(a)}
	side := r * 0.16
	left := [2]float64{cx + side*math.Sin(a-math.Pi/2), cy - side*math.Cos(a-math.Pi/2)}
	right := [2]float64{cx + side*math.Sin(a+math.Pi/2), cy - side*math.Cos(a+math.Pi/2)}
	o.canvas.fillPolygon([][2]float64{tip, left, right}, o.palette.Accent)

	north := "N"
	return o.text(north, int(cx)-o.textWidth(north)/2, int(cy-r*0.3)+o.ascent/2, col)
}

func (o *overlay) drawHeading() error {
	cx, cy, r := o.compassGeometry()
	hdg := o.info.Telemetry.HeadingDeg
	label := fmt.Sprintf("%03.0f° %s", math.Floor(hdg), geo.Cardinal(hdg))
	return o.text(label, int(cx)-o.textWidth(label)/2, int(cy+r)+o.lineHeight, o.palette.Accent)
}

func (o *overlay) drawTelemetry() error {
	rect := o.panelRect()
	pad := int(o.margin / 2)
	x := rect.Min.X + pad
	y := rect.Min.Y + pad + o.ascent

	if err := o.text("MISSION DATA", x, y, o.palette.Accent); err != nil {
		return err
	}
	for _, line := range o.telemetryLines() {
		y += o.lineHeight
		if err := o.text(line, x, y, o.palette.Primary); err != nil {
			return err
		}
	}
	return nil
}

func (o *overlay) drawFrameCounter() error {
	label := fmt.Sprintf("FRAME %d/%d", o.info.Index, o.info.Total)
	x := int(o.w-o.margin) - o.textWidth(label)
	y := int(o.margin) + o.ascent
	if err := o.text(label, x, y, o.palette.Label); err != nil {
		return err
	}
	if o.info.Telemetry.Overhead {
		view := "OVERHEAD"
		return o.text(view, int(o.w-o.margin)-o.textWidth(view), y+o.lineHeight, o.palette.Label)
	}
	return nil
}

func (o *overlay) drawTargetLabel() error {
	name := strings.ToUpper(strings.TrimSpace(o.info.Label))
	if name == "" {
		return nil
	}
	label := "TARGET: " + name
	bar := o.statusBarRect()
	x := int(o.w/2) - o.textWidth(label)/2
	y := bar.Min.Y - int(o.margin/2)
	return o.text(label, x, y, o.palette.Label)
}

func (o *overlay) drawStatusBar() error {
	bar := o.statusBarRect()
	t := o.info.Telemetry
	pad := int(o.margin / 2)
	y := bar.Min.Y + (bar.Dy()+o.ascent)/2 - 1

	coords := formatLatLon(t.Latitude, t.Longitude)
	if err := o.text(coords, pad, y, o.palette.Primary); err != nil {
		return err
	}

	clock := "T+" + formatOffset(t.TimestampOffsetS)
	return o.text(clock, int(o.w)-pad-o.textWidth(clock), y, o.palette.Primary)
}

func (o *overlay) drawFailureBanner() error {
	if !o.info.Telemetry.FetchFailed {
		return nil
	}
	label := "NO IMAGERY - FETCH FAILED"
	x := int(o.w/2) - o.textWidth(label)/2
	y := int(o.h/2 + o.unit*0.14)

	pad := int(o.margin / 4)
	o.canvas.fillRect(image.Rect(x-pad, y-o.ascent-pad, x+o.textWidth(label)+pad, y+pad*2), withAlpha(o.palette.Panel, 0.8))
	return o.text(label, x, y, o.palette.Warning)
}

// metersPerPixel returns the Web Mercator ground resolution, zero when the
// zoom level is unknown.
func metersPerPixel(lat float64, zoom int) float64 {
	if zoom <= 0 {
		return 0
	}
	return metersPerPixelZoom0 * math.Cos(lat*math.Pi/180) / math.Exp2(float64(zoom))
}

func formatOffset(seconds float64) string {
	s := int(math.Max(0, math.Round(seconds)))
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}

func formatLatLon(lat, lon float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.6f%s %.6f%s", math.Abs(lat), ns, math.Abs(lon), ew)
}
