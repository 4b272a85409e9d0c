package hud

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/roman-kulish/drone-flyover/internal/telemetry"
)

func sourcePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testInfo() FrameInfo {
	return FrameInfo{
		Index: 3,
		Total: 8,
		Label: "Achill Head",
		Telemetry: telemetry.Telemetry{
			Latitude:         53.9889,
			Longitude:        -10.0661,
			AltitudeM:        80,
			HeadingDeg:       135,
			SpeedMPS:         10,
			TimestampOffsetS: 754,
			Zoom:             18,
		},
	}
}

func TestCompositeDeterministic(t *testing.T) {
	c, err := NewCompositor(Style{})
	if err != nil {
		t.Fatal(err)
	}
	src := sourcePNG(t, 320, 240)

	a, err := c.Composite(src, testInfo())
	if err != nil {
		t.Fatalf("Composite() error = %v", err)
	}
	b, err := c.Composite(src, testInfo())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("compositing the same input twice produced different bytes")
	}

	out, err := png.Decode(bytes.NewReader(a))
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dx() != 320 || out.Bounds().Dy() != 240 {
		t.Errorf("output size = %v", out.Bounds())
	}
}

func TestCompositeDrawsOverlay(t *testing.T) {
	c, err := NewCompositor(Style{})
	if err != nil {
		t.Fatal(err)
	}
	src := image.NewRGBA(image.Rect(0, 0, 200, 200))
	out, err := c.Render(src, testInfo())
	if err != nil {
		t.Fatal(err)
	}

	// The reticle is drawn in red around the image center.
	red := 0
	for y := 85; y <= 115; y++ {
		for x := 85; x <= 115; x++ {
			c := out.RGBAAt(x, y)
			if c.R > 200 && c.G < 80 && c.B < 80 {
				red++
			}
		}
	}
	if red == 0 {
		t.Error("no reticle pixels near the image center")
	}
	if src.Pix[src.PixOffset(100, 90)] != 0 {
		t.Error("source image was modified")
	}
}

func TestCompositeResize(t *testing.T) {
	c, err := NewCompositor(Style{Width: 160, Height: 120, Enhance: true})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Render(image.NewRGBA(image.Rect(0, 0, 640, 480)), testInfo())
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds() != image.Rect(0, 0, 160, 120) {
		t.Errorf("output bounds = %v", out.Bounds())
	}
}

func TestCompositeFailedFetchBanner(t *testing.T) {
	c, err := NewCompositor(Style{})
	if err != nil {
		t.Fatal(err)
	}
	info := testInfo()
	blank := image.NewRGBA(image.Rect(0, 0, 240, 240))
	ok, err := c.Render(blank, info)
	if err != nil {
		t.Fatal(err)
	}
	info.Telemetry.FetchFailed = true
	failed, err := c.Render(blank, info)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ok.Pix, failed.Pix) {
		t.Error("failure banner not drawn")
	}
}

func TestCompositeErrors(t *testing.T) {
	c, err := NewCompositor(Style{})
	if err != nil {
		t.Fatal(err)
	}

	var compErr *CompositeError
	if _, err = c.Composite([]byte("not an image"), testInfo()); !errors.As(err, &compErr) {
		t.Errorf("garbage input: error = %v, want CompositeError", err)
	} else if compErr.Index != 3 {
		t.Errorf("error index = %d", compErr.Index)
	}

	info := testInfo()
	info.Telemetry.HeadingDeg = 360
	if _, err = c.Composite(sourcePNG(t, 64, 64), info); !errors.As(err, &compErr) {
		t.Errorf("bad heading: error = %v, want CompositeError", err)
	}

	info = testInfo()
	info.Index = 9
	if _, err = c.Composite(sourcePNG(t, 64, 64), info); !errors.As(err, &compErr) {
		t.Errorf("index past total: error = %v, want CompositeError", err)
	}
}

func TestNewCompositorStyle(t *testing.T) {
	bad := []Style{
		{Theme: "neon"},
		{Primary: "#zzzzzz"},
		{PanelOpacity: 2},
		{Width: -1},
	}
	for _, s := range bad {
		if _, err := NewCompositor(s); err == nil {
			t.Errorf("NewCompositor(%+v) expected error", s)
		}
	}

	c, err := NewCompositor(Style{Theme: NightTheme, Label: "ffffff"})
	if err != nil {
		t.Fatal(err)
	}
	if c.palette.Label != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("label override not applied: %v", c.palette.Label)
	}
	if c.Style().FontScale != DefaultFontScale {
		t.Errorf("font scale default = %g", c.Style().FontScale)
	}
}

func TestStyleScaleBounds(t *testing.T) {
	zero := Style{}
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero scales: %v", err)
	}
	edge := Style{FontScale: 0.2, LineScale: 0.05}
	if err := edge.Validate(); err != nil {
		t.Fatalf("upper bounds: %v", err)
	}

	cases := map[string]struct {
		style Style
		want  string
	}{
		"font":          {Style{FontScale: 0.3}, "[0, 0.2]"},
		"negative font": {Style{FontScale: -0.1}, "[0, 0.2]"},
		"line":          {Style{LineScale: 0.06}, "[0, 0.05]"},
	}
	for name, tc := range cases {
		err := tc.style.Validate()
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) || !strings.Contains(err.Error(), "zero selects the default") {
			t.Errorf("%s: error = %q", name, err)
		}
	}
}

func TestEnhanceStretchesContrast(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(80 + (i/4)%100) // Luminance confined to 80..179
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}

	lb := Enhance(img)
	if lb.Low < 80 || lb.High > 179 || lb.Low >= lb.High {
		t.Fatalf("bounds = %+v", lb)
	}

	var lo, hi uint8 = 255, 0
	for i := 0; i < len(img.Pix); i += 4 {
		lo, hi = min(lo, img.Pix[i]), max(hi, img.Pix[i])
	}
	if lo != 0 || hi != 255 {
		t.Errorf("stretched range = %d..%d, want 0..255", lo, hi)
	}
}

func TestEnhanceLeavesFlatImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for i := range img.Pix {
		img.Pix[i] = 120
	}
	before := bytes.Clone(img.Pix)
	Enhance(img)
	if !bytes.Equal(before, img.Pix) {
		t.Error("flat image modified")
	}
}
