package storage

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
)

// ThumbnailSize caps both dimensions of a thumbnail.
const ThumbnailSize = 300

// Blobs manages image files on disk.
//
// Directory structure:
//
//	<base>/
//	├── images/
//	│   ├── 1739871234567890123.png
//	│   └── 1739871234567890123_thumb.png
//	└── transfer/            # one-shot copies handed to the write-back actor
type Blobs struct {
	dir         string
	transferDir string
	ids         *IDGenerator
}

// NewBlobs creates a blob manager rooted at baseDir. Directories are
// created lazily on first write.
func NewBlobs(baseDir string) *Blobs {
	return &Blobs{
		dir:         filepath.Join(baseDir, "images"),
		transferDir: filepath.Join(baseDir, "transfer"),
		ids:         NewIDGenerator(0),
	}
}

// ThumbnailPath returns the thumbnail sibling of a full-size image path.
func ThumbnailPath(path string) string {
	return strings.TrimSuffix(path, ".png") + "_thumb.png"
}

// SaveImage writes img and a thumbnail no larger than ThumbnailSize on
// either side. It returns the path of the full-size image.
func (b *Blobs) SaveImage(img clipboard.Image) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("failed to save image: %w", clipboard.ErrEmpty)
	}
	if err := os.MkdirAll(b.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create images directory: %w", err)
	}

	name := strconv.FormatUint(b.ids.Next(), 10)
	path := filepath.Join(b.dir, name+".png")

	full := img.NRGBA()
	if err := writePNG(path, full); err != nil {
		return "", err
	}
	if err := writePNG(ThumbnailPath(path), thumbnail(full, ThumbnailSize)); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

// RemoveImage deletes a full-size image and its thumbnail. Files that are
// already gone are not an error.
func RemoveImage(path string) error {
	var errs []error
	for _, p := range []string{path, ThumbnailPath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove deletes an image and its thumbnail.
func (b *Blobs) Remove(path string) error {
	return RemoveImage(path)
}

// RemoveAll deletes every stored image.
func (b *Blobs) RemoveAll() error {
	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("failed to remove images directory: %w", err)
	}
	return nil
}

// Stage copies an image into the transfer directory so the write-back
// actor can consume (and delete) it without touching the history copy.
func (b *Blobs) Stage(path string) (string, error) {
	if err := os.MkdirAll(b.transferDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create transfer directory: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(b.transferDir, strconv.FormatUint(b.ids.Next(), 10)+".png")
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create transfer file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy image: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy image: %w", err)
	}
	return dst, nil
}

// PurgeTransfer deletes every staged copy.
func (b *Blobs) PurgeTransfer() error {
	if err := os.RemoveAll(b.transferDir); err != nil {
		return fmt.Errorf("failed to remove transfer directory: %w", err)
	}
	return nil
}

// Size returns the total bytes used by stored images.
func (b *Blobs) Size() int64 {
	var total int64
	filepath.Walk(b.dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

func writePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// thumbnail scales src down to fit in a limit x limit box, keeping the
// aspect ratio. Images that already fit are returned as-is.
func thumbnail(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src
	}

	tw, th := limit, limit
	if w > h {
		th = max(h*limit/w, 1)
	} else {
		tw = max(w*limit/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
