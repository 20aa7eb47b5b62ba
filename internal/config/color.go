package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ParseColor accepts "#rgb", "#rrggbb" and "#rrggbbaa" hex colors, SVG color
// names such as "white", and "transparent".
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == "":
		return color.NRGBA{}, fmt.Errorf("empty color")
	case s == "transparent" || s == "none":
		return color.NRGBA{}, nil
	case strings.HasPrefix(s, "#"):
		return parseHex(s)
	}

	c, ok := colornames.Map[s]
	if !ok {
		return color.NRGBA{}, fmt.Errorf("unknown color %q", s)
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
}

func parseHex(s string) (color.NRGBA, error) {
	if n := len(s); n != 4 && n != 7 && n != 9 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	alpha := uint8(255)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in %q", s)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
