package imgcmp

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrRectMismatch is returned by CheckRect when a pixel has the wrong color.
var ErrRectMismatch = errors.New("imgcmp: rectangle mismatch")

// CheckRect verifies that every pixel of img inside r equals want within
// tolerance on each channel. r is clipped to the image bounds. The error
// names the first offending pixel in row-major order.
func CheckRect(img image.Image, r image.Rectangle, want color.NRGBA, tolerance uint8) error {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if absDiff(got.R, want.R) > tolerance || absDiff(got.G, want.G) > tolerance ||
				absDiff(got.B, want.B) > tolerance || absDiff(got.A, want.A) > tolerance {
				return fmt.Errorf("%w: pixel (%d,%d) is %s, want %s (tolerance %d)",
					ErrRectMismatch, x, y, formatColor(got), formatColor(want), tolerance)
			}
		}
	}
	return nil
}

// CheckImage is CheckRect over the whole image.
func CheckImage(img image.Image, want color.NRGBA, tolerance uint8) error {
	return CheckRect(img, img.Bounds(), want, tolerance)
}

func formatColor(c color.NRGBA) string {
	return fmt.Sprintf("[%d,%d,%d,%d]", c.R, c.G, c.B, c.A)
}
