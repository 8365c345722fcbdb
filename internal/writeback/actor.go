// Package writeback writes selected history entries back to the clipboard.
//
// Requests are queued and handled one at a time by a single consumer, so
// there is never more than one clipboard write in flight. Each successful
// write records the written content in the shared dedup.State while still
// holding its lock, so the capture monitor sees the echo as a duplicate.
package writeback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
	"github.com/Atharva-Kanherkar/ropy/internal/dedup"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// ErrStopped is returned by Submit after Run has returned.
var ErrStopped = errors.New("write-back actor stopped")

// Kind says what a CopyRequest carries.
type Kind int

const (
	KindText Kind = iota
	KindImage
)

// CopyRequest asks for content to be put on the clipboard.
type CopyRequest struct {
	Kind Kind
	Text string
	// Path of a PNG to write. The file and its thumbnail sibling are
	// consumed: both are removed after a successful write.
	Path string
	// Staged marks Path as a private copy made for this request. It is
	// removed even when the write fails or the request is dropped.
	Staged bool

	done chan error
}

// TextRequest creates a request to write text.
func TextRequest(text string) CopyRequest {
	return CopyRequest{Kind: KindText, Text: text}
}

// ImageRequest creates a request to write the PNG at path.
func ImageRequest(path string) CopyRequest {
	return CopyRequest{Kind: KindImage, Path: path}
}

// StagedImageRequest creates a request to write a private copy at path.
func StagedImageRequest(path string) CopyRequest {
	return CopyRequest{Kind: KindImage, Path: path, Staged: true}
}

// Actor is the single consumer of CopyRequests.
type Actor struct {
	cb    clipboard.Clipboard
	state *dedup.State

	// OnDone, if set, is called after every request with its result.
	OnDone func(req CopyRequest, err error)

	mu      sync.Mutex
	queue   []CopyRequest
	stopped bool
	wake    chan struct{}
}

// New creates an Actor writing to cb.
func New(cb clipboard.Clipboard, state *dedup.State) *Actor {
	return &Actor{
		cb:    cb,
		state: state,
		wake:  make(chan struct{}, 1),
	}
}

// Submit queues req. It never blocks.
func (a *Actor) Submit(req CopyRequest) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrStopped
	}
	a.queue = append(a.queue, req)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do queues req and waits until it has been written. It returns the write
// error, ErrStopped if the actor shut down first, or ctx.Err().
func (a *Actor) Do(ctx context.Context, req CopyRequest) error {
	req.done = make(chan error, 1)
	if err := a.Submit(req); err != nil {
		return err
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued requests.
func (a *Actor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Run processes queued requests until ctx is done. Requests still queued
// at that point are dropped.
func (a *Actor) Run(ctx context.Context) error {
	defer func() {
		a.mu.Lock()
		a.stopped = true
		dropped := a.queue
		a.queue = nil
		a.mu.Unlock()

		for _, req := range dropped {
			a.finish(req, ErrStopped)
		}
	}()

	for {
		for {
			req, ok := a.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				a.finish(req, ErrStopped)
				return nil
			}
			a.Process(ctx, req)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-a.wake:
		}
	}
}

func (a *Actor) next() (CopyRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return CopyRequest{}, false
	}
	req := a.queue[0]
	a.queue[0] = CopyRequest{}
	a.queue = a.queue[1:]
	return req, true
}

// Process performs one write synchronously.
func (a *Actor) Process(ctx context.Context, req CopyRequest) error {
	var err error
	switch req.Kind {
	case KindText:
		err = a.writeText(ctx, req.Text)
	case KindImage:
		err = a.writeImage(ctx, req.Path)
	default:
		err = fmt.Errorf("unknown request kind %d", req.Kind)
	}

	if err != nil {
		log.Printf("[writeback] %v", err)
	}
	a.finish(req, err)
	return err
}

// finish reports the outcome of req. A staged copy that was not consumed
// by a successful write is removed here.
func (a *Actor) finish(req CopyRequest, err error) {
	if err != nil && req.Kind == KindImage && req.Staged {
		if rmErr := storage.RemoveImage(req.Path); rmErr != nil {
			log.Printf("[writeback] Failed to remove staged image: %v", rmErr)
		}
	}
	if a.OnDone != nil {
		a.OnDone(req, err)
	}
	if req.done != nil {
		req.done <- err
	}
}

func (a *Actor) writeText(ctx context.Context, text string) error {
	err := a.state.Commit(dedup.Text(text), func() error {
		return a.cb.SetText(ctx, text)
	})
	if err != nil {
		return fmt.Errorf("failed to write text to clipboard: %w", err)
	}
	return nil
}

func (a *Actor) writeImage(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", path, err)
	}
	img, err := clipboard.DecodePNG(data)
	if err != nil {
		return fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	err = a.state.Commit(dedup.ImageOf(img), func() error {
		return a.cb.SetImage(ctx, img)
	})
	if err != nil {
		return fmt.Errorf("failed to write image to clipboard: %w", err)
	}

	if err := storage.RemoveImage(path); err != nil {
		log.Printf("[writeback] Failed to remove transferred image: %v", err)
	}
	return nil
}
