package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRawLayout is returned for a malformed raw layout string.
var ErrRawLayout = errors.New("image: invalid raw layout")

// RawLayout describes a headerless pixel dump, such as the bytes a test page
// gets from gl.readPixels or a WebGPU texture-to-buffer copy.
type RawLayout struct {
	Width, Height int
	Format        Format

	// Stride is the distance between row starts in bytes; 0 means tightly
	// packed. WebGPU copies pad rows to a multiple of 256.
	Stride int

	// BottomUp marks GL readbacks, whose first row is the bottom one.
	BottomUp bool
}

// ParseRawLayout parses "WxH:FORMAT" followed by optional ":stride=N" and
// ":flip" options, for example "256x256:rgba8:flip" or
// "100x20:bgra8:stride=512".
func ParseRawLayout(s string) (RawLayout, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return RawLayout{}, fmt.Errorf("%w: %q", ErrRawLayout, s)
	}

	var l RawLayout
	w, h, ok := strings.Cut(parts[0], "x")
	if !ok {
		return RawLayout{}, fmt.Errorf("%w: size %q", ErrRawLayout, parts[0])
	}
	var err error
	if l.Width, err = strconv.Atoi(w); err != nil || l.Width <= 0 {
		return RawLayout{}, fmt.Errorf("%w: size %q", ErrRawLayout, parts[0])
	}
	if l.Height, err = strconv.Atoi(h); err != nil || l.Height <= 0 {
		return RawLayout{}, fmt.Errorf("%w: size %q", ErrRawLayout, parts[0])
	}
	if l.Format, ok = ParseFormat(parts[1]); !ok {
		return RawLayout{}, fmt.Errorf("%w: format %q", ErrRawLayout, parts[1])
	}

	for _, opt := range parts[2:] {
		switch {
		case opt == "flip":
			l.BottomUp = true
		case strings.HasPrefix(opt, "stride="):
			if l.Stride, err = strconv.Atoi(opt[len("stride="):]); err != nil || l.Stride < 0 {
				return RawLayout{}, fmt.Errorf("%w: option %q", ErrRawLayout, opt)
			}
		default:
			return RawLayout{}, fmt.Errorf("%w: option %q", ErrRawLayout, opt)
		}
	}
	return l, nil
}

// DecodeRaw interprets data with layout l. data is used in place and is
// reordered when the layout is bottom-up.
func DecodeRaw(data []byte, l RawLayout) (*ImageBuf, error) {
	buf, err := FromRaw(data, l.Width, l.Height, l.Format, l.Stride)
	if err != nil {
		return nil, err
	}
	if l.BottomUp {
		buf.FlipY()
	}
	return buf, nil
}

// LoadRaw reads a raw pixel dump from path.
func LoadRaw(path string, l RawLayout) (*ImageBuf, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: read raw: %w", err)
	}
	return DecodeRaw(data, l)
}
