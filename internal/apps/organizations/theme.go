package organizations

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidHexColor reports whether s is #rgb or #rrggbb.
func ValidHexColor(s string) bool {
	return hexColor.MatchString(s)
}

type Theme struct {
	Primary      string `json:"primary"`
	PrimaryDark  string `json:"primaryDark"`
	PrimaryLight string `json:"primaryLight"`
	Secondary    string `json:"secondary"`
	Accent       string `json:"accent"`
	OnPrimary    string `json:"onPrimary"`
	Custom       bool   `json:"custom"`
}

type Branding struct {
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	LogoURL       string `json:"logoUrl"`
	CoverURL      string `json:"coverUrl"`
	Profile       string `json:"profile"`
	AudienceLabel string `json:"audienceLabel"`
	Theme         Theme  `json:"theme"`
}

func ResolveBranding(org *Organization, v *Vertical) Branding {
	return Branding{
		Slug:          org.Slug,
		Name:          org.Name,
		LogoURL:       org.LogoURL,
		CoverURL:      org.CoverURL,
		Profile:       v.Profile,
		AudienceLabel: v.AudienceLabel,
		Theme:         ResolveTheme(org, v),
	}
}

// ResolveTheme derives a palette from the organization's primary color when
// it has a valid one, and falls back to the vertical defaults otherwise.
func ResolveTheme(org *Organization, v *Vertical) Theme {
	if org != nil && ValidHexColor(org.PrimaryColor) {
		return customTheme(org.PrimaryColor, org.SecondaryColor)
	}
	return verticalTheme(v)
}

func customTheme(primary, secondary string) Theme {
	c, _ := parseHex(primary)
	h, s, l := c.hsl()

	t := Theme{
		Primary:      c.hex(),
		PrimaryDark:  fromHSL(h, s, clamp01(l-0.2)).hex(),
		PrimaryLight: fromHSL(h, s, clamp01(l+0.2)).hex(),
		Secondary:    fromHSL(h+30, s, l).hex(),
		Accent:       fromHSL(h+180, s, l).hex(),
		OnPrimary:    onColor(c),
		Custom:       true,
	}
	if sc, ok := parseHex(secondary); ok {
		t.Secondary = sc.hex()
	}
	return t
}

func verticalTheme(v *Vertical) Theme {
	fallback := "#4F46E5"
	if v == nil {
		return presetTheme(fallback, Theme{})
	}
	primary := v.ThemePrimary
	if !ValidHexColor(primary) {
		primary = fallback
	}
	return presetTheme(primary, Theme{
		Secondary: v.ThemeSecondary,
		Accent:    v.ThemeAccent,
		OnPrimary: v.ThemeOnPrimary,
	})
}

// presetTheme derives the palette from primary and keeps any valid
// color already set in preset.
func presetTheme(primary string, preset Theme) Theme {
	t := customTheme(primary, "")
	t.Custom = false
	if c, ok := parseHex(preset.Secondary); ok {
		t.Secondary = c.hex()
	}
	if c, ok := parseHex(preset.Accent); ok {
		t.Accent = c.hex()
	}
	if c, ok := parseHex(preset.OnPrimary); ok {
		t.OnPrimary = c.hex()
	}
	return t
}

type rgb struct {
	r, g, b float64 // 0..1
}

func parseHex(s string) (rgb, bool) {
	if !ValidHexColor(s) {
		return rgb{}, false
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{}, false
	}
	return rgb{
		r: float64((n>>16)&0xff) / 255,
		g: float64((n>>8)&0xff) / 255,
		b: float64(n&0xff) / 255,
	}, true
}

func (c rgb) hex() string {
	to := func(v float64) int { return int(math.Round(clamp01(v)*255 + 1e-9)) }
	return fmt.Sprintf("#%02X%02X%02X", to(c.r), to(c.g), to(c.b))
}

// hsl returns hue in degrees, saturation and lightness in 0..1.
func (c rgb) hsl() (h, s, l float64) {
	hi := math.Max(c.r, math.Max(c.g, c.b))
	lo := math.Min(c.r, math.Min(c.g, c.b))
	l = (hi + lo) / 2
	if hi == lo {
		return 0, 0, l
	}
	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}
	switch hi {
	case c.r:
		h = (c.g - c.b) / d
		if c.g < c.b {
			h += 6
		}
	case c.g:
		h = (c.b-c.r)/d + 2
	default:
		h = (c.r-c.g)/d + 4
	}
	return h * 60, s, l
}

func fromHSL(h, s, l float64) rgb {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if s == 0 {
		return rgb{l, l, l}
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	hk := h / 360
	return rgb{
		r: hueToRGB(p, q, hk+1.0/3),
		g: hueToRGB(p, q, hk),
		b: hueToRGB(p, q, hk-1.0/3),
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

// relativeLuminance follows WCAG 2.x.
func (c rgb) relativeLuminance() float64 {
	lin := func(v float64) float64 {
		if v <= 0.03928 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(c.r) + 0.7152*lin(c.g) + 0.0722*lin(c.b)
}

// onColor picks black or white text, whichever contrasts more with c.
func onColor(c rgb) string {
	l := c.relativeLuminance()
	contrastWhite := 1.05 / (l + 0.05)
	contrastBlack := (l + 0.05) / 0.05
	if contrastBlack > contrastWhite {
		return "#000000"
	}
	return "#FFFFFF"
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
