package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/ropy/internal/platform"
)

// MinPollInterval bounds the fallback polling loop from below.
const MinPollInterval = 50 * time.Millisecond

// Exec reaches the clipboard through command-line tools:
// wl-paste/wl-copy on Wayland, xclip on X11, pbpaste/pbcopy on macOS.
// These tools have no change notification, so Watch polls on a timer.
type Exec struct {
	platform *platform.Platform
	interval time.Duration
}

// NewExec creates an Exec clipboard polling every interval.
func NewExec(plat *platform.Platform, interval time.Duration) *Exec {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &Exec{platform: plat, interval: interval}
}

// Text reads the clipboard as plain text.
func (e *Exec) Text(ctx context.Context) (string, error) {
	var name string
	var args []string
	switch {
	case e.platform.IsWayland():
		name, args = "wl-paste", []string{"-n", "--type", "text/plain"}
	case e.platform.DisplayServer == platform.DisplayServerX11:
		name, args = "xclip", []string{"-selection", "clipboard", "-o"}
	case e.platform.DisplayServer == platform.DisplayServerMacOS:
		name = "pbpaste"
	default:
		return "", ErrUnsupported
	}

	out, err := run(ctx, nil, name, args...)
	if err != nil {
		return "", readError(err)
	}
	if len(out) == 0 {
		return "", ErrEmpty
	}
	return string(out), nil
}

// Image reads a PNG image from the clipboard if one is offered.
func (e *Exec) Image(ctx context.Context) (Image, error) {
	var listName, readName string
	var listArgs, readArgs []string
	switch {
	case e.platform.IsWayland():
		listName, listArgs = "wl-paste", []string{"--list-types"}
		readName, readArgs = "wl-paste", []string{"--type", "image/png"}
	case e.platform.DisplayServer == platform.DisplayServerX11:
		listName, listArgs = "xclip", []string{"-selection", "clipboard", "-t", "TARGETS", "-o"}
		readName, readArgs = "xclip", []string{"-selection", "clipboard", "-t", "image/png", "-o"}
	default:
		return Image{}, ErrUnsupported
	}

	// First check what types are available
	types, err := run(ctx, nil, listName, listArgs...)
	if err != nil {
		return Image{}, readError(err)
	}
	if !strings.Contains(string(types), "image/png") {
		return Image{}, ErrEmpty
	}

	data, err := run(ctx, nil, readName, readArgs...)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read clipboard image: %w", err)
	}
	return DecodePNG(data)
}

// SetText writes text to the clipboard.
func (e *Exec) SetText(ctx context.Context, text string) error {
	var name string
	var args []string
	switch {
	case e.platform.IsWayland():
		name, args = "wl-copy", []string{"--type", "text/plain"}
	case e.platform.DisplayServer == platform.DisplayServerX11:
		name, args = "xclip", []string{"-selection", "clipboard", "-i"}
	case e.platform.DisplayServer == platform.DisplayServerMacOS:
		name = "pbcopy"
	default:
		return ErrUnsupported
	}

	if _, err := run(ctx, strings.NewReader(text), name, args...); err != nil {
		return fmt.Errorf("failed to write clipboard text: %w", err)
	}
	return nil
}

// SetImage writes img to the clipboard as PNG.
func (e *Exec) SetImage(ctx context.Context, img Image) error {
	var name string
	var args []string
	switch {
	case e.platform.IsWayland():
		name, args = "wl-copy", []string{"--type", "image/png"}
	case e.platform.DisplayServer == platform.DisplayServerX11:
		name, args = "xclip", []string{"-selection", "clipboard", "-t", "image/png", "-i"}
	default:
		return ErrUnsupported
	}

	data, err := img.EncodePNG()
	if err != nil {
		return err
	}
	if _, err := run(ctx, bytes.NewReader(data), name, args...); err != nil {
		return fmt.Errorf("failed to write clipboard image: %w", err)
	}
	return nil
}

// Watch emits a signal every poll interval. The monitor's dedup check
// turns unchanged polls into no-ops.
func (e *Exec) Watch(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// emptyMarkers are what the tools print when the selection is empty or
// holds no matching type (wl-paste, xclip).
var emptyMarkers = []string{
	"nothing is copied",
	"no selection",
	"no suitable type",
	"not available",
}

// readError separates an empty selection, which the tools report with a
// non-zero exit, from a real failure.
func readError(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range emptyMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrEmpty, err)
		}
	}
	return fmt.Errorf("failed to read clipboard: %w", err)
}

// run executes a clipboard tool and returns its stdout.
func run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}
