package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ParseColor accepts CSS "rgba(r, g, b, a)", "rgb(r, g, b)" or "#rrggbb".
func ParseColor(s string) (drawing.Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if len(s) != 7 && len(s) != 4 {
			return drawing.Color{}, fmt.Errorf("invalid hex color %q", s)
		}
		return drawing.ColorFromHex(strings.TrimPrefix(s, "#")), nil
	}

	var args string
	var wantAlpha bool
	switch {
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		args, wantAlpha = s[len("rgba("):len(s)-1], true
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		args = s[len("rgb(") : len(s)-1]
	default:
		return drawing.Color{}, fmt.Errorf("unsupported color %q", s)
	}

	parts := strings.Split(args, ",")
	if (wantAlpha && len(parts) != 4) || (!wantAlpha && len(parts) != 3) {
		return drawing.Color{}, fmt.Errorf("invalid color %q: wrong number of components", s)
	}

	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return drawing.Color{}, fmt.Errorf("invalid color %q: component %d out of range", s, i)
		}
		rgb[i] = uint8(v)
	}

	alpha := uint8(255)
	if wantAlpha {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return drawing.Color{}, fmt.Errorf("invalid color %q: alpha must be in [0, 1]", s)
		}
		alpha = uint8(math.Round(a * 255))
	}

	return drawing.Color{R: rgb[0], G: rgb[1], B: rgb[2], A: alpha}, nil
}
