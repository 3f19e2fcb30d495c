package gpu

import "github.com/gogpu/gputypes"

// Format is a texture pixel format. Every format stores 8 bits per channel
// with premultiplied alpha.
type Format uint8

// Supported formats.
const (
	FormatRGBA8 Format = iota
	FormatBGRA8
)

// BytesPerPixel returns the storage size of one pixel.
func (f Format) BytesPerPixel() int {
	return 4
}

// TextureFormat returns the gputypes equivalent of f.
func (f Format) TextureFormat() gputypes.TextureFormat {
	if f == FormatBGRA8 {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	default:
		return "Unknown"
	}
}

// FormatFromTexture maps a gputypes texture format back to a Format.
// Unknown formats map to FormatRGBA8.
func FormatFromTexture(f gputypes.TextureFormat) Format {
	if f == gputypes.TextureFormatBGRA8Unorm {
		return FormatBGRA8
	}
	return FormatRGBA8
}

// Filter selects texture sampling.
type Filter uint8

// Sampling filters.
const (
	FilterLinear Filter = iota
	FilterNearest
)

// FilterMode returns the gputypes equivalent of f.
func (f Filter) FilterMode() gputypes.FilterMode {
	if f == FilterNearest {
		return gputypes.FilterModeNearest
	}
	return gputypes.FilterModeLinear
}

// String returns the name of the filter.
func (f Filter) String() string {
	if f == FilterNearest {
		return "Nearest"
	}
	return "Linear"
}

// SwizzleRB swaps the red and blue channels of 4-byte pixels in place.
func SwizzleRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
