package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
	"github.com/Atharva-Kanherkar/ropy/internal/dedup"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// Options tunes what the monitor captures.
type Options struct {
	// MaxTextBytes skips larger text copies. Zero means unlimited.
	MaxTextBytes int

	// IgnoreKeywords suppresses text containing any of these (case-insensitive).
	IgnoreKeywords []string

	// ReadsPerSecond bounds clipboard reads on bursty notification sources.
	// Zero or less means unlimited.
	ReadsPerSecond float64

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Monitor watches the clipboard and emits an Event for every novel change.
type Monitor struct {
	cb    clipboard.Clipboard
	state *dedup.State
	blobs *storage.Blobs
	opts  Options

	events chan Event

	// mu keeps one notification at a time in Reading..Persisting.
	mu sync.Mutex
}

// NewMonitor creates a monitor reading from cb. Images are written through blobs.
func NewMonitor(cb clipboard.Clipboard, state *dedup.State, blobs *storage.Blobs, opts Options) *Monitor {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	return &Monitor{
		cb:     cb,
		state:  state,
		blobs:  blobs,
		opts:   opts,
		events: make(chan Event, opts.EventBuffer),
	}
}

// Events returns the channel capture events are delivered on.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run subscribes to w and handles every notification until ctx is done.
// The clipboard is checked once immediately so content copied before
// startup is seen.
func (m *Monitor) Run(ctx context.Context, w clipboard.Watcher) error {
	changes, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch clipboard: %w", err)
	}

	limit := rate.Inf
	if m.opts.ReadsPerSecond > 0 {
		limit = rate.Limit(m.opts.ReadsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	// Run once immediately
	m.handle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			m.handle(ctx)
		}
	}
}

func (m *Monitor) handle(ctx context.Context) {
	ev, err := m.HandleChange(ctx)
	if err != nil {
		log.Printf("[clipboard] %v", err)
		return
	}
	if ev == nil {
		return
	}

	select {
	case m.events <- *ev:
	case <-ctx.Done():
	}
}

// HandleChange reads the clipboard once and returns an Event if the
// content is novel. A nil Event with a nil error means there was nothing
// new to capture.
func (m *Monitor) HandleChange(ctx context.Context) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, err := m.cb.Image(ctx)
	if err == nil && !img.Empty() {
		return m.handleImage(img)
	}
	if err != nil && !errors.Is(err, clipboard.ErrEmpty) && !errors.Is(err, clipboard.ErrUnsupported) {
		return nil, fmt.Errorf("failed to read clipboard image: %w", err)
	}

	text, err := m.cb.Text(ctx)
	if errors.Is(err, clipboard.ErrEmpty) || errors.Is(err, clipboard.ErrUnsupported) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard: %w", err)
	}
	return m.handleText(text)
}

func (m *Monitor) handleImage(img clipboard.Image) (*Event, error) {
	if !m.state.Observe(dedup.ImageOf(img)) {
		return nil, nil
	}

	path, err := m.blobs.SaveImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to save clipboard image: %w", err)
	}

	ev := NewEvent(storage.ContentImage, path)
	return &ev, nil
}

func (m *Monitor) handleText(text string) (*Event, error) {
	if text == "" {
		return nil, nil
	}
	if m.opts.MaxTextBytes > 0 && len(text) > m.opts.MaxTextBytes {
		log.Printf("[clipboard] Skipping %d bytes of text (limit %d)", len(text), m.opts.MaxTextBytes)
		return nil, nil
	}

	if !m.state.Observe(dedup.Text(text)) {
		return nil, nil
	}
	if containsKeyword(text, m.opts.IgnoreKeywords) {
		return nil, nil
	}

	typ, content := classify(text)
	ev := NewEvent(typ, content)
	return &ev, nil
}
