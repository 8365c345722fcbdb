// Package clipboard is the boundary to the operating system clipboard.
//
// Everything above this package talks to the clipboard through two narrow
// interfaces: Clipboard for reads and writes, and Watcher for change
// notifications. Three implementations exist:
//
//   - Native: golang.design/x/clipboard, push notifications
//   - Exec:   wl-paste / xclip / pbpaste shell-outs, polled on a timer
//   - Memory: in-process, for headless runs and tests
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

var (
	// ErrEmpty means the clipboard holds nothing in the requested format.
	ErrEmpty = errors.New("clipboard is empty")

	// ErrUnsupported means the backend cannot handle the requested format.
	ErrUnsupported = errors.New("clipboard format not supported")
)

// Clipboard reads and writes the system clipboard.
// Every call is fallible; callers must never assume a read succeeds.
type Clipboard interface {
	Text(ctx context.Context) (string, error)
	Image(ctx context.Context) (Image, error)
	SetText(ctx context.Context, text string) error
	SetImage(ctx context.Context, img Image) error
}

// Watcher delivers a signal every time the clipboard may have changed.
// The channel is closed when ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Image is a decoded clipboard image: tightly packed 8-bit RGBA rows with
// non-premultiplied alpha, the same layout PNG stores. A PNG encode/decode
// round trip therefore returns identical pixels, so an image written to a
// PNG-carrying clipboard reads back with the same fingerprint.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// ImageFrom converts any image.Image into the packed NRGBA form.
func ImageFrom(src image.Image) Image {
	b := src.Bounds()
	nrgba, ok := src.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)
	}
	return Image{Width: b.Dx(), Height: b.Dy(), Pix: nrgba.Pix}
}

// NRGBA wraps the pixel buffer as an *image.NRGBA without copying.
func (i Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    i.Pix,
		Stride: 4 * i.Width,
		Rect:   image.Rect(0, 0, i.Width, i.Height),
	}
}

// Empty reports whether the image carries no pixels.
func (i Image) Empty() bool {
	return i.Width == 0 || i.Height == 0 || len(i.Pix) == 0
}

// DecodePNG decodes PNG bytes as delivered by most clipboard backends.
func DecodePNG(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode png: %w", err)
	}
	return ImageFrom(img), nil
}

// EncodePNG encodes the image for backends that only accept PNG.
func (i Image) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, i.NRGBA()); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
