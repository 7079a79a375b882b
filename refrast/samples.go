package refrast

// subpixelOffset is a sample position inside a pixel in subpixel units.
type subpixelOffset struct {
	x, y int64
}

// Standard sample positions in 1/16 pixel units relative to the pixel
// center, the layouts used by D3D and WebGPU for 2, 4, 8 and 16 samples.
var (
	samples2 = [][2]int{{4, 4}, {-4, -4}}
	samples4 = [][2]int{{-2, -6}, {6, -2}, {-6, 2}, {2, 6}}
	samples8 = [][2]int{
		{1, -3}, {-1, 3}, {5, 1}, {-3, -5},
		{-5, 5}, {-7, -1}, {3, 7}, {7, -7},
	}
	samples16 = [][2]int{
		{1, 1}, {-1, -3}, {-3, 2}, {4, -1},
		{-5, -2}, {2, 5}, {5, 3}, {3, -5},
		{-2, 6}, {0, -7}, {-4, -6}, {-6, 4},
		{-8, 0}, {7, -4}, {6, 7}, {-7, -8},
	}
)

// samplePattern returns the sample offsets for a sample count.
func samplePattern(n int) ([]subpixelOffset, bool) {
	var table [][2]int
	switch n {
	case 1:
		return []subpixelOffset{{SubpixelHalf, SubpixelHalf}}, true
	case 2:
		table = samples2
	case 4:
		table = samples4
	case 8:
		table = samples8
	case 16:
		table = samples16
	default:
		return nil, false
	}

	const sixteenth = SubpixelOne / 16
	out := make([]subpixelOffset, len(table))
	for i, s := range table {
		out[i] = subpixelOffset{
			x: SubpixelHalf + int64(s[0])*sixteenth,
			y: SubpixelHalf + int64(s[1])*sixteenth,
		}
	}
	return out, true
}

// SamplePosition returns sample i of an n-sample pattern as a fraction of
// the pixel, measured from its lower-left corner.
func SamplePosition(n, i int) (x, y float32, ok bool) {
	p, ok := samplePattern(n)
	if !ok || i < 0 || i >= len(p) {
		return 0, 0, false
	}
	return float32(SubpixelToFloat(p[i].x)), float32(SubpixelToFloat(p[i].y)), true
}
