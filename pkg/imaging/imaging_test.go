package imaging_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
	"github.com/prividentity/cryptonet-go/pkg/imaging"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestLoadPNGLayouts(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	src.Set(1, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	data := encodePNG(t, src)

	cases := []struct {
		format cryptonet.ImageFormat
		want   []byte
	}{
		{cryptonet.FormatRGBA, []byte{10, 20, 30, 255, 200, 100, 50, 255}},
		{cryptonet.FormatRGB, []byte{10, 20, 30, 200, 100, 50}},
		{cryptonet.FormatBGR, []byte{30, 20, 10, 50, 100, 200}},
		{cryptonet.FormatRGBX, []byte{10, 20, 30, 255, 200, 100, 50, 255}},
	}
	for _, tc := range cases {
		img, err := imaging.Load(bytes.NewReader(data), tc.format, imaging.Limits{})
		if err != nil {
			t.Fatalf("%s: %v", tc.format, err)
		}
		if !bytes.Equal(img.Pixels, tc.want) {
			t.Fatalf("%s: pixels %v, want %v", tc.format, img.Pixels, tc.want)
		}
		if err := img.Validate(tc.format); err != nil {
			t.Fatalf("%s: %v", tc.format, err)
		}
	}

	gray, err := imaging.Load(bytes.NewReader(data), cryptonet.FormatGray, imaging.Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(gray.Pixels) != 2 || gray.Pixels[0] >= gray.Pixels[1] {
		t.Fatalf("gray pixels %v", gray.Pixels)
	}
}

func TestLoadPPM(t *testing.T) {
	ppm := append([]byte("P6\n2 1\n255\n"), 255, 0, 0, 0, 0, 255)
	img, err := imaging.Load(bytes.NewReader(ppm), cryptonet.FormatRGB, imaging.Limits{})
	if err != nil {
		t.Fatalf("Load(ppm): %v", err)
	}
	if want := []byte{255, 0, 0, 0, 0, 255}; !bytes.Equal(img.Pixels, want) {
		t.Fatalf("pixels %v, want %v", img.Pixels, want)
	}
}

func TestFit(t *testing.T) {
	wide := image.NewNRGBA(image.Rect(0, 0, 3000, 1500))
	b := imaging.Fit(wide, 1000).Bounds()
	if b.Dx() != 1000 || b.Dy() != 500 {
		t.Fatalf("wide fit = %v", b)
	}

	tall := image.NewGray(image.Rect(0, 0, 400, 1600))
	b = imaging.Fit(tall, 1000).Bounds()
	if b.Dx() != 250 || b.Dy() != 1000 {
		t.Fatalf("tall fit = %v", b)
	}

	small := image.NewGray(image.Rect(0, 0, 20, 10))
	if imaging.Fit(small, 1000) != image.Image(small) {
		t.Fatal("small image was resampled")
	}
}

func TestDecodeRejectsUnknown(t *testing.T) {
	if _, _, err := imaging.Decode(bytes.NewReader([]byte("definitely not an image")), 0); !errors.Is(err, imaging.ErrUnsupported) {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := imaging.ToImage(image.NewGray(image.Rect(0, 0, 1, 1)), "yuv"); err == nil {
		t.Fatal("unknown layout accepted")
	}
}

// withCanvas rewrites the IHDR chunk of a PNG so it declares width x height
// while the pixel data stays tiny.
func withCanvas(t *testing.T, data []byte, width, height uint32) []byte {
	t.Helper()
	out := bytes.Clone(data)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected first chunk %q", out[12:16])
	}
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecodeRejectsHugeCanvas(t *testing.T) {
	small := encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 4)))
	huge := withCanvas(t, small, 20000, 20000)

	if _, err := imaging.Load(bytes.NewReader(huge), cryptonet.FormatRGBA, imaging.Limits{}); !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("Load(20000x20000): %v", err)
	}
	if _, _, err := imaging.Decode(bytes.NewReader(small), 15); !errors.Is(err, imaging.ErrTooLarge) {
		t.Fatalf("Decode(4x4, 15): %v", err)
	}
	img, _, err := imaging.Decode(bytes.NewReader(small), 16)
	if err != nil {
		t.Fatalf("Decode(4x4, 16): %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("bounds %v", b)
	}
}
