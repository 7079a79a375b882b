package image

import (
	"errors"
	"image"
)

// Buffer errors.
var (
	ErrInvalidDimensions = errors.New("image: invalid dimensions")
	ErrInvalidFormat     = errors.New("image: invalid format")
	ErrInvalidStride     = errors.New("image: stride too small for width")
	ErrDataTooSmall      = errors.New("image: data buffer too small")
)

// ImageBuf is a strided pixel buffer with row 0 at the top.
//
// ImageBuf is safe for concurrent reads. Writes require external
// synchronization.
type ImageBuf struct {
	data   []byte
	width  int
	height int
	stride int
	format Format
}

// NewImageBuf allocates a zeroed buffer with tightly packed rows.
func NewImageBuf(width, height int, format Format) (*ImageBuf, error) {
	if err := checkSize(width, height, format); err != nil {
		return nil, err
	}
	stride := format.RowBytes(width)
	return &ImageBuf{
		data:   make([]byte, stride*height),
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

// FromRaw wraps pixel bytes without copying. A stride of 0 means tightly
// packed rows. The last row may omit its padding, as a WebGPU buffer copy
// does.
func FromRaw(data []byte, width, height int, format Format, stride int) (*ImageBuf, error) {
	if err := checkSize(width, height, format); err != nil {
		return nil, err
	}
	row := format.RowBytes(width)
	if stride == 0 {
		stride = row
	}
	if stride < row {
		return nil, ErrInvalidStride
	}
	need := stride*(height-1) + row
	if len(data) < need {
		return nil, ErrDataTooSmall
	}
	return &ImageBuf{
		data:   data[:need],
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

func checkSize(width, height int, format Format) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	if !format.IsValid() {
		return ErrInvalidFormat
	}
	return nil
}

// Width returns the image width in pixels.
func (b *ImageBuf) Width() int { return b.width }

// Height returns the image height in pixels.
func (b *ImageBuf) Height() int { return b.height }

// Format returns the pixel format.
func (b *ImageBuf) Format() Format { return b.format }

// Bounds returns the image bounds anchored at the origin.
func (b *ImageBuf) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.width, b.height)
}

// RowBytes returns the pixels of row y without padding, or nil if y is out
// of range.
func (b *ImageBuf) RowBytes(y int) []byte {
	if y < 0 || y >= b.height {
		return nil
	}
	start := y * b.stride
	return b.data[start : start+b.format.RowBytes(b.width)]
}

// GetRGBA returns the straight-alpha color at (x, y). Out-of-bounds reads
// return transparent black.
func (b *ImageBuf) GetRGBA(x, y int) (r, g, bl, a byte) {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return 0, 0, 0, 0
	}
	p := b.data[y*b.stride+x*b.format.BytesPerPixel():]

	switch b.format {
	case FormatRGBA8:
		return p[0], p[1], p[2], p[3]
	case FormatRGBA8Premul:
		return unpremul(p[0], p[3]), unpremul(p[1], p[3]), unpremul(p[2], p[3]), p[3]
	case FormatBGRA8:
		return p[2], p[1], p[0], p[3]
	case FormatRGB8:
		return p[0], p[1], p[2], 255
	case FormatGray8:
		return p[0], p[0], p[0], 255
	}
	return 0, 0, 0, 0
}

// FlipY reverses the row order in place. GL readbacks start with the
// bottom row.
func (b *ImageBuf) FlipY() {
	tmp := make([]byte, b.format.RowBytes(b.width))
	for top, bottom := 0, b.height-1; top < bottom; top, bottom = top+1, bottom-1 {
		t, u := b.RowBytes(top), b.RowBytes(bottom)
		copy(tmp, t)
		copy(t, u)
		copy(u, tmp)
	}
}

func unpremul(c, a byte) byte {
	if a == 0 {
		return 0
	}
	return byte(min((uint16(c)*255+uint16(a)/2)/uint16(a), 255))
}
