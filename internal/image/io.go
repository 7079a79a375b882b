package image

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // reference images
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadImage decodes an image file into an RGBA8 buffer. PNG, JPEG, GIF,
// BMP, TIFF and WebP are recognized by content.
func LoadImage(path string) (*ImageBuf, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image: decode: %w", err)
	}
	return FromStdImage(img), nil
}

// SavePNG writes the buffer as a straight-alpha PNG.
func (b *ImageBuf) SavePNG(path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := png.Encode(f, b.ToStdImage()); err != nil {
		_ = f.Close()
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return f.Close()
}

// FromStdImage copies img into a new RGBA8 buffer.
func FromStdImage(img image.Image) *ImageBuf {
	bounds := img.Bounds()
	buf, err := NewImageBuf(bounds.Dx(), bounds.Dy(), FormatRGBA8)
	if err != nil {
		// Empty images have no pixels to compare.
		return &ImageBuf{format: FormatRGBA8}
	}
	if src, ok := img.(*image.NRGBA); ok {
		for y := range buf.height {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(buf.RowBytes(y), src.Pix[off:off+buf.stride])
		}
		return buf
	}
	// draw un-premultiplies everything else into NRGBA.
	dst := &image.NRGBA{Pix: buf.data, Stride: buf.stride, Rect: buf.Bounds()}
	draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	return buf
}

// ToStdImage converts the buffer to an *image.NRGBA.
func (b *ImageBuf) ToStdImage() image.Image {
	out := image.NewNRGBA(b.Bounds())
	for y := range b.height {
		row := out.Pix[y*out.Stride : y*out.Stride+b.width*4]
		if b.format == FormatRGBA8 {
			copy(row, b.RowBytes(y))
			continue
		}
		for x := range b.width {
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = b.GetRGBA(x, y)
		}
	}
	return out
}
