// Package image holds the pixel buffers that move between the reference
// renderer, browser readbacks and the image comparators.
//
// A buffer is described by a Format and a row stride, so raw readPixels
// dumps and decoded screenshots share one representation.
package image

import "strings"

// Format is the byte layout of one pixel.
type Format uint8

const (
	// FormatRGBA8 is straight-alpha RGBA, as returned by
	// readPixels(RGBA, UNSIGNED_BYTE).
	FormatRGBA8 Format = iota

	// FormatRGBA8Premul is RGBA read back from a canvas created with
	// premultipliedAlpha: true.
	FormatRGBA8Premul

	// FormatBGRA8 is the byte order of bgra8unorm swapchain textures.
	FormatBGRA8

	// FormatRGB8 is readPixels(RGB, UNSIGNED_BYTE); alpha reads as opaque.
	FormatRGB8

	// FormatGray8 is a single luminance byte, replicated to RGB on read.
	FormatGray8

	formatCount
)

var formatNames = [formatCount]string{
	FormatRGBA8:       "rgba8",
	FormatRGBA8Premul: "rgba8-premul",
	FormatBGRA8:       "bgra8",
	FormatRGB8:        "rgb8",
	FormatGray8:       "gray8",
}

// String returns the name accepted by ParseFormat.
func (f Format) String() string {
	if !f.IsValid() {
		return "unknown"
	}
	return formatNames[f]
}

// ParseFormat maps a format name to its Format, ignoring case.
func ParseFormat(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == name {
			return Format(f), true
		}
	}
	return 0, false
}

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	return f < formatCount
}

// BytesPerPixel returns the size of one pixel, or 0 for unknown formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8, FormatRGBA8Premul, FormatBGRA8:
		return 4
	case FormatRGB8:
		return 3
	case FormatGray8:
		return 1
	}
	return 0
}

// RowBytes returns the unpadded size of a row of width pixels.
func (f Format) RowBytes(width int) int {
	return width * f.BytesPerPixel()
}
