package imgcmp

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	intImage "github.com/gogpu/conform/internal/image"
)

// ScaleMask enlarges an error mask by an integer factor with nearest
// neighbour sampling so single-pixel errors stay visible. Factors below 2
// return the mask unchanged.
func ScaleMask(mask *image.RGBA, factor int) *image.RGBA {
	if mask == nil || factor < 2 {
		return mask
	}
	b := mask.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), mask, b, draw.Src, nil)
	return dst
}

// LoadImage reads a reference or result image. PNG, JPEG, GIF, BMP, TIFF
// and WebP files are accepted.
func LoadImage(path string) (image.Image, error) {
	buf, err := intImage.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("imgcmp: load %s: %w", path, err)
	}
	return buf.ToStdImage(), nil
}

// LoadRaw reads a headerless readback dump. layout has the form
// "WxH:FORMAT[:stride=N][:flip]", for example "256x256:rgba8:flip" for the
// bytes of gl.readPixels.
func LoadRaw(path, layout string) (image.Image, error) {
	l, err := intImage.ParseRawLayout(layout)
	if err != nil {
		return nil, fmt.Errorf("imgcmp: load %s: %w", path, err)
	}
	buf, err := intImage.LoadRaw(path, l)
	if err != nil {
		return nil, fmt.Errorf("imgcmp: load %s: %w", path, err)
	}
	return buf.ToStdImage(), nil
}

// SaveMask writes the error mask of r as a PNG, enlarged by zoom.
func SaveMask(path string, r *Result, zoom int) error {
	if r == nil || r.ErrorMask == nil {
		return fmt.Errorf("imgcmp: save %s: no error mask", path)
	}
	buf := intImage.FromStdImage(ScaleMask(r.ErrorMask, zoom))
	if err := buf.SavePNG(path); err != nil {
		return fmt.Errorf("imgcmp: save %s: %w", path, err)
	}
	return nil
}
