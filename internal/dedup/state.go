// Package dedup holds the fingerprint of the content we believe is on the
// clipboard right now, either because we captured it or because we wrote it.
//
// The capture monitor and the write-back actor share one State. Its mutex is
// the only serialization point between them: compare-then-update happens
// under a single lock, so an echo of our own write can never slip past as a
// new capture.
package dedup

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
)

// Kind tags what a Fingerprint describes.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindImage
)

// Fingerprint identifies clipboard content: the literal text, or a 64-bit
// hash of an image's raw pixel bytes. The zero value matches nothing.
type Fingerprint struct {
	Kind Kind
	Text string
	Hash uint64
}

// Text fingerprints a text value.
func Text(s string) Fingerprint {
	return Fingerprint{Kind: KindText, Text: s}
}

// Image fingerprints an image by a precomputed pixel hash.
func Image(hash uint64) Fingerprint {
	return Fingerprint{Kind: KindImage, Hash: hash}
}

// ImageOf hashes the raw RGBA pixels of img.
func ImageOf(img clipboard.Image) Fingerprint {
	return Image(xxhash.Sum64(img.Pix))
}

// IsZero reports whether fp is the empty fingerprint.
func (fp Fingerprint) IsZero() bool {
	return fp.Kind == KindNone
}

// State is the shared last-seen fingerprint. Create one at startup and pass
// it to both the monitor and the write-back actor.
type State struct {
	mu sync.Mutex
	fp Fingerprint
}

// New creates an empty State.
func New() *State {
	return &State{}
}

// Observe compares fp against the stored fingerprint and stores it if it
// differs. It returns true when fp is new content.
func (s *State) Observe(fp Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fp == s.fp {
		return false
	}
	s.fp = fp
	return true
}

// Commit runs write while holding the lock and records fp only if write
// succeeds. A monitor poll that lands during the write blocks in Observe
// until the new fingerprint is in place, so it sees the echo as a duplicate.
func (s *State) Commit(fp Fingerprint, write func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := write(); err != nil {
		return err
	}
	s.fp = fp
	return nil
}

// Set overwrites the stored fingerprint.
func (s *State) Set(fp Fingerprint) {
	s.mu.Lock()
	s.fp = fp
	s.mu.Unlock()
}

// Reset empties the state, e.g. after the history is cleared.
func (s *State) Reset() {
	s.Set(Fingerprint{})
}

// Current returns the stored fingerprint.
func (s *State) Current() Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fp
}
