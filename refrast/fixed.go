package refrast

import "math"

// Subpixel fixed-point constants. Window coordinates are snapped to a grid of
// 1/256 pixel before any edge function is evaluated.
const (
	// SubpixelBits is the number of fractional bits in subpixel coordinates.
	SubpixelBits = 8

	// SubpixelOne represents 1.0 pixel in subpixel units (256).
	SubpixelOne int64 = 1 << SubpixelBits

	// SubpixelHalf represents 0.5 pixel in subpixel units.
	SubpixelHalf int64 = SubpixelOne / 2

	// GuardBand bounds window coordinates, in pixels. Edge coefficients of
	// coordinates within it fit int64 with room for evaluation.
	GuardBand = 1 << 20
)

// ToSubpixel converts a window coordinate to subpixel fixed point,
// rounding half away from zero. Coordinates are clamped to ±GuardBand and
// NaN maps to 0.
func ToSubpixel(v float32) int64 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v > GuardBand:
		v = GuardBand
	case v < -GuardBand:
		v = -GuardBand
	}
	f := float64(v) * float64(SubpixelOne)
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// PixelToSubpixel converts an integer pixel coordinate to subpixel units.
func PixelToSubpixel(p int) int64 {
	return int64(p) << SubpixelBits
}

// SubpixelToFloat converts a subpixel coordinate back to pixels.
func SubpixelToFloat(s int64) float64 {
	return float64(s) / float64(SubpixelOne)
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ceilDiv is integer division rounding toward positive infinity.
func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

// floorSubpixelToPixel returns the first pixel that may contain a sample at
// or right of coord. fillEdge widens the bound by one subpixel when the edge
// at coord is inclusive.
func floorSubpixelToPixel(coord int64, fillEdge bool) int {
	if fillEdge {
		coord--
	}
	return int(floorDiv(coord, SubpixelOne))
}

// ceilSubpixelToPixel returns the last pixel that may contain a sample at or
// left of coord.
func ceilSubpixelToPixel(coord int64, fillEdge bool) int {
	if fillEdge {
		coord++
	}
	return int(ceilDiv(coord, SubpixelOne))
}
