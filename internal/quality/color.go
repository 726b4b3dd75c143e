package quality

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// withinPaletteTolerance reports whether hex is within maxDeltaE (CIE76
// ΔE*ab) of at least one palette entry (§4.5 check 2, §9 Design Notes).
func withinPaletteTolerance(hex string, palette []string, maxDeltaE float64) bool {
	lab, err := hexToLab(hex)
	if err != nil {
		return false
	}
	for _, p := range palette {
		pLab, err := hexToLab(p)
		if err != nil {
			continue
		}
		if deltaE76(lab, pLab) <= maxDeltaE {
			return true
		}
	}
	return false
}

type labColor struct{ L, A, B float64 }

func deltaE76(a, b labColor) float64 {
	dl := a.L - b.L
	da := a.A - b.A
	db := a.B - b.B
	return math.Sqrt(dl*dl + da*da + db*db)
}

func hexToLab(hex string) (labColor, error) {
	r, g, b, err := hexToRGB(hex)
	if err != nil {
		return labColor{}, err
	}
	x, y, z := rgbToXYZ(r, g, b)
	return xyzToLab(x, y, z), nil
}

func hexToRGB(hex string) (r, g, b float64, err error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("color.go: invalid hex color %q", hex)
	}
	ri, err := strconv.ParseInt(hex[0:2], 16, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	gi, err := strconv.ParseInt(hex[2:4], 16, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	bi, err := strconv.ParseInt(hex[4:6], 16, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	return float64(ri) / 255, float64(gi) / 255, float64(bi) / 255, nil
}

func rgbToXYZ(r, g, b float64) (x, y, z float64) {
	linear := func(c float64) float64 {
		if c > 0.04045 {
			return math.Pow((c+0.055)/1.055, 2.4)
		}
		return c / 12.92
	}
	r, g, b = linear(r), linear(g), linear(b)

	x = r*0.4124 + g*0.3576 + b*0.1805
	y = r*0.2126 + g*0.7152 + b*0.0722
	z = r*0.0193 + g*0.1192 + b*0.9505
	return
}

// D65 reference white.
const (
	refX = 0.95047
	refY = 1.00000
	refZ = 1.08883
)

func xyzToLab(x, y, z float64) labColor {
	f := func(t float64) float64 {
		if t > 0.008856 {
			return math.Cbrt(t)
		}
		return 7.787*t + 16.0/116.0
	}
	fx, fy, fz := f(x/refX), f(y/refY), f(z/refZ)

	return labColor{
		L: 116*fy - 16,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}
