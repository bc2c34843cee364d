package cryptonet

import (
	"fmt"
	"math"
)

// ImageFormat names the channel layout of a raw pixel buffer. The value is
// sent to the library as input_image_format.
type ImageFormat string

const (
	FormatRGBA ImageFormat = "rgba"
	// FormatRGBX is four bytes per pixel with the last one ignored.
	FormatRGBX ImageFormat = "rgbx"
	FormatRGB  ImageFormat = "rgb"
	FormatBGR  ImageFormat = "bgr"
	FormatGray ImageFormat = "gray"
)

// Channels returns the bytes per pixel for f, or 0 when the layout is not
// known to the wrapper. Unknown layouts are passed through with only their
// dimensions checked.
func (f ImageFormat) Channels() int {
	switch f {
	case FormatRGBA, FormatRGBX:
		return 4
	case FormatRGB, FormatBGR:
		return 3
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// Image is a raw, tightly packed bitmap: Height rows of Width pixels, no row
// padding.
type Image struct {
	Pixels []byte
	Width  int
	Height int
	Format ImageFormat
}

// Validate checks the buffer against the dimensions for the given layout.
func (img Image) Validate(format ImageFormat) error {
	if img.Width <= 0 || img.Height <= 0 || img.Width > math.MaxInt32 || img.Height > math.MaxInt32 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, img.Width, img.Height)
	}
	if len(img.Pixels) == 0 {
		return fmt.Errorf("%w: empty pixel buffer", ErrInvalidImage)
	}
	ch := format.Channels()
	if ch == 0 {
		return nil
	}
	if want := img.Width * img.Height * ch; len(img.Pixels) != want {
		return fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrInvalidImage, format, img.Width, img.Height, want, len(img.Pixels))
	}
	return nil
}
