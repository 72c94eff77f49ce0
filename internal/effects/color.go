package effects

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidColor is returned for color strings that are not 3-byte hex RGB
var ErrInvalidColor = errors.New("invalid color")

// ParseHex decodes "#RRGGBB" (leading '#' optional) into its components
func ParseHex(color string) (r, g, b uint8, err error) {
	s := strings.TrimPrefix(strings.TrimSpace(color), "#")
	raw, decErr := hex.DecodeString(s)
	if decErr != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	return raw[0], raw[1], raw[2], nil
}

// HexToHueSat converts a hex RGB color to Hue v1 hue (0..65535) and
// saturation (0..254) via HSV. Achromatic colors map to hue 0.
func HexToHueSat(color string) (uint16, uint8, error) {
	r8, g8, b8, err := ParseHex(color)
	if err != nil {
		return 0, 0, err
	}

	h, s := rgbToHS(float64(r8)/255, float64(g8)/255, float64(b8)/255)
	return uint16(math.Round(h / 360 * 65535)), uint8(math.Round(s * MaxBrightness)), nil
}

// rgbToHS returns HSV hue in degrees [0, 360) and saturation in [0, 1]
func rgbToHS(r, g, b float64) (float64, float64) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case maxC == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}
	return h, s
}
