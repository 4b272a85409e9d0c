package hud

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Theme is a predefined HUD color scheme:
//   - ClassicTheme: green symbology, amber headers, red reticle, cyan labels
//   - NightTheme: red-shifted palette that preserves dark adaptation
//   - ThermalTheme: white-hot symbology over a navy panel
//   - MonoTheme: grayscale, for print
type Theme string

const (
	ClassicTheme Theme = "classic"
	NightTheme   Theme = "night"
	ThermalTheme Theme = "thermal"
	MonoTheme    Theme = "mono"

	DefaultFontScale    = 0.026 // Font pixel height relative to the shorter image side
	DefaultLineScale    = 0.004 // Stroke width relative to the shorter image side
	DefaultPanelOpacity = 0.55
)

var validThemes = map[Theme]struct{}{
	ClassicTheme: {},
	NightTheme:   {},
	ThermalTheme: {},
	MonoTheme:    {},
}

// Style is the fixed rendering configuration of a compositor. Two frames
// rendered with the same Style and inputs are byte-identical.
type Style struct {
	Theme Theme `yaml:"theme"`

	// Hex color overrides ("#00ff00"); empty keeps the theme color
	Primary string `yaml:"primary"` // Graphics and readouts
	Accent  string `yaml:"accent"`  // Panel headers and heading needle
	Warning string `yaml:"warning"` // Reticle and failure banner
	Label   string `yaml:"label"`   // Target label and frame counter

	FontScale    float64 `yaml:"fontScale"`
	LineScale    float64 `yaml:"lineScale"`
	PanelOpacity float64 `yaml:"panelOpacity"`

	Width   int  `yaml:"width"`  // Output width, zero keeps the source width
	Height  int  `yaml:"height"` // Output height, zero keeps the source height
	Enhance bool `yaml:"enhance"`
}

func (s *Style) Validate() error {
	if s.Theme != "" {
		if _, ok := validThemes[s.Theme]; !ok {
			return fmt.Errorf("hud.Style: unknown theme %q", s.Theme)
		}
	}
	if s.FontScale < 0 || s.FontScale > 0.2 {
		return fmt.Errorf("hud.Style: font scale must be within [0, 0.2], zero selects the default: %g given", s.FontScale)
	}
	if s.LineScale < 0 || s.LineScale > 0.05 {
		return fmt.Errorf("hud.Style: line scale must be within [0, 0.05], zero selects the default: %g given", s.LineScale)
	}
	if s.PanelOpacity < 0 || s.PanelOpacity > 1 {
		return fmt.Errorf("hud.Style: panel opacity must be within [0, 1]: %g given", s.PanelOpacity)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("hud.Style: output size cannot be negative: %dx%d", s.Width, s.Height)
	}
	for name, hex := range map[string]string{"primary": s.Primary, "accent": s.Accent, "warning": s.Warning, "label": s.Label} {
		if _, err := parseHex(hex); hex != "" && err != nil {
			return fmt.Errorf("hud.Style: %s color: %w", name, err)
		}
	}
	return nil
}

// Palette holds the resolved colors used for drawing.
type Palette struct {
	Primary color.RGBA
	Accent  color.RGBA
	Warning color.RGBA
	Label   color.RGBA
	Panel   color.RGBA
	Shadow  color.RGBA
}

func hsv(h, s, v float64) color.RGBA {
	r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func themePalette(theme Theme) Palette {
	black := color.RGBA{A: 255}

	switch theme {
	case NightTheme:
		return Palette{
			Primary: hsv(0, 0.85, 0.9),
			Accent:  hsv(20, 0.9, 1),
			Warning: hsv(50, 1, 1),
			Label:   hsv(0, 0.45, 1),
			Panel:   black,
			Shadow:  black,
		}

	case ThermalTheme:
		return Palette{
			Primary: hsv(0, 0, 1),
			Accent:  hsv(30, 1, 1),
			Warning: hsv(0, 1, 1),
			Label:   hsv(55, 1, 1),
			Panel:   hsv(230, 0.8, 0.25),
			Shadow:  black,
		}

	case MonoTheme:
		return Palette{
			Primary: hsv(0, 0, 1),
			Accent:  hsv(0, 0, 0.85),
			Warning: hsv(0, 0, 1),
			Label:   hsv(0, 0, 0.9),
			Panel:   black,
			Shadow:  black,
		}

	default:
		return Palette{
			Primary: color.RGBA{G: 255, A: 255},
			Accent:  color.RGBA{R: 255, G: 191, A: 255},
			Warning: color.RGBA{R: 255, A: 255},
			Label:   color.RGBA{G: 255, B: 255, A: 255},
			Panel:   black,
			Shadow:  black,
		}
	}
}

// resolvePalette applies the style's hex overrides to its theme palette.
func resolvePalette(s Style) (Palette, error) {
	p := themePalette(s.Theme)
	overrides := []struct {
		hex string
		dst *color.RGBA
	}{
		{s.Primary, &p.Primary},
		{s.Accent, &p.Accent},
		{s.Warning, &p.Warning},
		{s.Label, &p.Label},
	}
	for _, o := range overrides {
		if o.hex == "" {
			continue
		}
		c, err := parseHex(o.hex)
		if err != nil {
			return p, err
		}
		*o.dst = c
	}
	return p, nil
}

func parseHex(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// withAlpha returns c as a non-premultiplied color with the given opacity.
func withAlpha(c color.RGBA, opacity float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(opacity*255 + 0.5)}
}
