// Package imaging turns encoded photos into the raw, tightly packed bitmaps
// the cryptonet library consumes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "github.com/spakin/netpbm"
	"golang.org/x/image/draw"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

const (
	// DefaultMaxDim bounds the longer side of an image before it is handed
	// to the library.
	DefaultMaxDim = 1000
	// DefaultMaxPixels bounds the canvas an encoded image may declare.
	DefaultMaxPixels = 40_000_000
)

var (
	ErrUnsupported = errors.New("imaging: unsupported image encoding")
	ErrTooLarge    = errors.New("imaging: image too large")
)

// Limits bound what Load accepts and produces. MaxDim <= 0 disables
// resizing; MaxPixels <= 0 uses DefaultMaxPixels.
type Limits struct {
	MaxDim    int
	MaxPixels int
}

// Decode reads a PNG, JPEG, GIF or Netpbm (PBM, PGM, PPM, PAM) image. The
// header is read first and images declaring more than maxPixels pixels are
// rejected with ErrTooLarge before any bitmap is allocated. maxPixels <= 0
// uses DefaultMaxPixels.
func Decode(r io.Reader, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, "", decodeErr(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("imaging: decode: dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width > maxPixels/cfg.Height {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, kind, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, "", decodeErr(err)
	}
	return img, kind, nil
}

func decodeErr(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return ErrUnsupported
	}
	return fmt.Errorf("imaging: decode: %w", err)
}

// Fit scales img down, keeping its aspect ratio, until neither side exceeds
// maxDim. Images already small enough, and maxDim <= 0, return img unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// ToImage lays img out as a raw bitmap in format. Sources without alpha come
// out opaque.
func ToImage(img image.Image, format cryptonet.ImageFormat) (cryptonet.Image, error) {
	if format == "" {
		format = cryptonet.FormatRGBA
	}
	ch := format.Channels()
	if ch == 0 {
		return cryptonet.Image{}, fmt.Errorf("imaging: cannot lay out pixels as %q", format)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := cryptonet.Image{Pixels: make([]byte, w*h*ch), Width: w, Height: h, Format: format}

	if format == cryptonet.FormatGray {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pixels[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			}
		}
		return out, nil
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			src := row[x*4 : x*4+4]
			dst := out.Pixels[(y*w+x)*ch : (y*w+x+1)*ch]
			switch format {
			case cryptonet.FormatRGBA, cryptonet.FormatRGBX:
				copy(dst, src)
			case cryptonet.FormatRGB:
				dst[0], dst[1], dst[2] = src[0], src[1], src[2]
			case cryptonet.FormatBGR:
				dst[0], dst[1], dst[2] = src[2], src[1], src[0]
			}
		}
	}
	return out, nil
}

// Load decodes r within lim, fits it within lim.MaxDim and lays it out in
// format.
func Load(r io.Reader, format cryptonet.ImageFormat, lim Limits) (cryptonet.Image, error) {
	img, _, err := Decode(r, lim.MaxPixels)
	if err != nil {
		return cryptonet.Image{}, err
	}
	return ToImage(Fit(img, lim.MaxDim), format)
}
