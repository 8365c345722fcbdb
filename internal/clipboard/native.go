package clipboard

import (
	"context"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var initOnce struct {
	sync.Once
	err error
}

// Native talks to the system clipboard through golang.design/x/clipboard.
// It needs cgo on Linux (X11) and a running display.
type Native struct{}

// NewNative initializes the platform clipboard. The library may only be
// initialized once per process, so repeated calls share the first result.
func NewNative() (*Native, error) {
	initOnce.Do(func() {
		initOnce.err = clipboard.Init()
	})
	if initOnce.err != nil {
		return nil, fmt.Errorf("failed to initialize clipboard: %w", initOnce.err)
	}
	return &Native{}, nil
}

// Text reads UTF-8 text from the clipboard.
func (n *Native) Text(ctx context.Context) (string, error) {
	data := clipboard.Read(clipboard.FmtText)
	if len(data) == 0 {
		return "", ErrEmpty
	}
	return string(data), nil
}

// Image reads a PNG image from the clipboard and decodes it.
func (n *Native) Image(ctx context.Context) (Image, error) {
	return DecodePNG(clipboard.Read(clipboard.FmtImage))
}

// SetText writes text to the clipboard.
func (n *Native) SetText(ctx context.Context, text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// SetImage writes img to the clipboard as PNG.
func (n *Native) SetImage(ctx context.Context, img Image) error {
	if img.Empty() {
		return fmt.Errorf("failed to write image: %w", ErrEmpty)
	}
	data, err := img.EncodePNG()
	if err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtImage, data)
	return nil
}

// Watch merges the library's text and image change streams into one signal.
func (n *Native) Watch(ctx context.Context) (<-chan struct{}, error) {
	textCh := clipboard.Watch(ctx, clipboard.FmtText)
	imageCh := clipboard.Watch(ctx, clipboard.FmtImage)

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for textCh != nil || imageCh != nil {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-textCh:
				if !ok {
					textCh = nil
					continue
				}
			case _, ok := <-imageCh:
				if !ok {
					imageCh = nil
					continue
				}
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}
