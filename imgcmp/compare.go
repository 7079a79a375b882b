// Package imgcmp compares rendered images against references.
//
// Images are compared as straight-alpha RGBA8. Every comparison produces a
// Result with an error mask: green pixels passed, red pixels failed.
package imgcmp

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/gogpu/conform"
	intImage "github.com/gogpu/conform/internal/image"
	"github.com/gogpu/conform/internal/parallel"
)

// Comparison errors.
var (
	// ErrSizeMismatch is returned when the reference and result differ in size.
	ErrSizeMismatch = errors.New("imgcmp: image sizes differ")

	// ErrInvalidDeviation is returned for a negative position deviation.
	ErrInvalidDeviation = errors.New("imgcmp: negative position deviation")
)

var (
	maskPass = color.RGBA{G: 255, A: 255}
	maskFail = color.RGBA{R: 255, A: 255}
)

// Threshold is the largest per-channel absolute difference that still
// counts as a match.
type Threshold struct {
	R, G, B, A uint8
}

// UniformThreshold returns a Threshold with the same limit on every channel.
func UniformThreshold(v uint8) Threshold {
	return Threshold{R: v, G: v, B: v, A: v}
}

// String formats the threshold as "r,g,b,a".
func (t Threshold) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", t.R, t.G, t.B, t.A)
}

// ParseThreshold parses "r,g,b,a" or a single value applied to every channel.
func ParseThreshold(s string) (Threshold, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 1 && len(parts) != 4 {
		return Threshold{}, fmt.Errorf("imgcmp: threshold %q: want 1 or 4 values", s)
	}
	var v [4]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return Threshold{}, fmt.Errorf("imgcmp: threshold %q: %w", s, err)
		}
		v[i] = uint8(n)
	}
	if len(parts) == 1 {
		return UniformThreshold(v[0]), nil
	}
	return Threshold{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
}

func (t Threshold) allows(d [4]uint8) bool {
	return d[0] <= t.R && d[1] <= t.G && d[2] <= t.B && d[3] <= t.A
}

// Result describes the outcome of a comparison.
type Result struct {
	Name          string
	Width, Height int

	// Mismatched is the number of pixels outside the threshold.
	Mismatched int

	// MaxDiff is the largest per-channel difference over all compared
	// pixel pairs. With a position deviation each result pixel is paired
	// with its best reference candidate.
	MaxDiff [4]uint8

	ErrorMask *image.RGBA
}

// Passed reports whether every pixel matched.
func (r *Result) Passed() bool {
	return r.Mismatched == 0
}

// rowStats is accumulated per row so bands can run without locking.
type rowStats struct {
	mismatched int
	maxDiff    [4]uint8
}

// IntThresholdCompare compares ref and res pixel by pixel. A pixel matches
// when the absolute difference of every channel is within th.
func IntThresholdCompare(name string, ref, res image.Image, th Threshold) (*Result, error) {
	return PositionDeviationCompare(name, ref, res, th, 0)
}

// PositionDeviationCompare is IntThresholdCompare that tolerates
// rasterization differences: a result pixel matches when any reference pixel
// within maxDev pixels in x and y is within th.
func PositionDeviationCompare(name string, ref, res image.Image, th Threshold, maxDev int) (*Result, error) {
	if maxDev < 0 {
		return nil, ErrInvalidDeviation
	}
	rb, sb := ref.Bounds(), res.Bounds()
	if rb.Dx() != sb.Dx() || rb.Dy() != sb.Dy() {
		return nil, fmt.Errorf("%w: reference %dx%d, result %dx%d",
			ErrSizeMismatch, rb.Dx(), rb.Dy(), sb.Dx(), sb.Dy())
	}

	a := intImage.FromStdImage(ref)
	b := intImage.FromStdImage(res)
	w, h := a.Width(), a.Height()

	result := &Result{
		Name:      name,
		Width:     w,
		Height:    h,
		ErrorMask: image.NewRGBA(image.Rect(0, 0, w, h)),
	}
	if w == 0 || h == 0 {
		return result, nil
	}

	rows := make([]rowStats, h)
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()

	pool.ForEachBand(h, func(band parallel.Band) {
		for y := band.Y0; y < band.Y1; y++ {
			st := &rows[y]
			for x := range w {
				d := bestDiff(a, b, x, y, th, maxDev)
				for ch := range 4 {
					st.maxDiff[ch] = max(st.maxDiff[ch], d[ch])
				}
				if th.allows(d) {
					result.ErrorMask.SetRGBA(x, y, maskPass)
				} else {
					st.mismatched++
					result.ErrorMask.SetRGBA(x, y, maskFail)
				}
			}
		}
	})

	for _, st := range rows {
		result.Mismatched += st.mismatched
		for ch := range 4 {
			result.MaxDiff[ch] = max(result.MaxDiff[ch], st.maxDiff[ch])
		}
	}

	logResult(result, th, maxDev)
	return result, nil
}

// bestDiff returns the difference between res(x, y) and the closest
// reference pixel in the neighbourhood. The exact position is tried first.
func bestDiff(ref, res *intImage.ImageBuf, x, y int, th Threshold, maxDev int) [4]uint8 {
	r, g, b, a := res.GetRGBA(x, y)
	px := [4]uint8{r, g, b, a}

	best := diffAt(ref, x, y, px)
	if maxDev == 0 || th.allows(best) {
		return best
	}

	for ny := max(y-maxDev, 0); ny <= min(y+maxDev, ref.Height()-1); ny++ {
		for nx := max(x-maxDev, 0); nx <= min(x+maxDev, ref.Width()-1); nx++ {
			d := diffAt(ref, nx, ny, px)
			if th.allows(d) {
				return d
			}
		}
	}
	return best
}

func diffAt(ref *intImage.ImageBuf, x, y int, px [4]uint8) [4]uint8 {
	r, g, b, a := ref.GetRGBA(x, y)
	return [4]uint8{absDiff(r, px[0]), absDiff(g, px[1]), absDiff(b, px[2]), absDiff(a, px[3])}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func logResult(r *Result, th Threshold, maxDev int) {
	attrs := []any{
		"name", r.Name,
		"size", fmt.Sprintf("%dx%d", r.Width, r.Height),
		"threshold", th.String(),
		"deviation", maxDev,
		"max_diff", fmt.Sprintf("%d,%d,%d,%d", r.MaxDiff[0], r.MaxDiff[1], r.MaxDiff[2], r.MaxDiff[3]),
	}
	if r.Passed() {
		conform.Logger().Info("imgcmp: images match", attrs...)
		return
	}
	conform.Logger().Warn("imgcmp: images differ", append(attrs, "mismatched", r.Mismatched)...)
}
