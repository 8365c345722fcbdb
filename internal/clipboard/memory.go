package clipboard

import (
	"context"
	"sync"
)

// Memory is an in-process clipboard. It backs the "memory" backend (useful
// on headless machines) and drives the capture/write-back tests.
//
// Like a real clipboard it holds one value at a time: setting text drops
// any image and vice versa.
type Memory struct {
	mu       sync.Mutex
	text     string
	image    Image
	hasImage bool

	readErr  error
	writeErr error
	writes   int

	watchers []chan struct{}
}

// NewMemory creates an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{}
}

// Text returns the current text, or ErrEmpty.
func (m *Memory) Text(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	if m.hasImage || m.text == "" {
		return "", ErrEmpty
	}
	return m.text, nil
}

// Image returns the current image, or ErrEmpty.
func (m *Memory) Image(ctx context.Context) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return Image{}, m.readErr
	}
	if !m.hasImage {
		return Image{}, ErrEmpty
	}
	return m.image, nil
}

// SetText replaces the clipboard content with text.
func (m *Memory) SetText(ctx context.Context, text string) error {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	m.text = text
	m.image = Image{}
	m.hasImage = false
	m.writes++
	m.mu.Unlock()

	m.notify()
	return nil
}

// SetImage replaces the clipboard content with img.
func (m *Memory) SetImage(ctx context.Context, img Image) error {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	m.image = Image{Width: img.Width, Height: img.Height, Pix: pix}
	m.hasImage = true
	m.text = ""
	m.writes++
	m.mu.Unlock()

	m.notify()
	return nil
}

// FailReads makes every subsequent read return err (nil restores reads).
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// FailWrites makes every subsequent write return err (nil restores writes).
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Writes returns how many successful writes the clipboard has seen.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Watch signals after every successful write.
func (m *Memory) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 16)

	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, w := range m.watchers {
			if w == ch {
				m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
				break
			}
		}
		close(ch)
		m.mu.Unlock()
	}()

	return ch, nil
}

func (m *Memory) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers {
		// A pending signal already covers this change.
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
