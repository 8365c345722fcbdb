// Package daemon provides the Manager that ties the clipboard pipeline together.
//
// The Manager runs three loops, each in its own goroutine:
// - Capture monitor: clipboard notifications → capture events
// - Write-back actor: queued selections → clipboard writes
// - History: capture events → store → mirror, enforcing the retention bound
//
// Without a store (it failed to open) the Manager runs in ephemeral mode:
// history lives only in the mirror and is lost on exit.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Atharva-Kanherkar/ropy/internal/capture"
	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
	"github.com/Atharva-Kanherkar/ropy/internal/config"
	"github.com/Atharva-Kanherkar/ropy/internal/dedup"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
	"github.com/Atharva-Kanherkar/ropy/internal/writeback"
)

// Manager orchestrates capture, write-back and history.
type Manager struct {
	cfg     *config.Config
	cb      clipboard.Clipboard
	watcher clipboard.Watcher
	store   *storage.Store // nil in ephemeral mode

	blobs   *storage.Blobs
	ids     *storage.IDGenerator // ephemeral ids
	tempDir string               // ephemeral blob dir

	state   *dedup.State
	monitor *capture.Monitor
	writer  *writeback.Actor
	mirror  *Mirror

	// histMu keeps store and mirror changes in step: a record is persisted
	// and pushed without a delete or clear landing in between.
	histMu sync.Mutex

	listenersMu sync.RWMutex
	onAdded     []func(storage.Record)
	onDeleted   []func(uint64)
	onCleared   []func()

	// Control
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager creates a Manager. store may be nil for ephemeral mode.
// watcher is the change source the monitor subscribes to; if nil, cb is
// used when it can watch itself.
func NewManager(cfg *config.Config, cb clipboard.Clipboard, watcher clipboard.Watcher, store *storage.Store) (*Manager, error) {
	if watcher == nil {
		if w, ok := cb.(clipboard.Watcher); ok {
			watcher = w
		}
	}

	m := &Manager{
		cfg:     cfg,
		cb:      cb,
		watcher: watcher,
		store:   store,
		state:   dedup.New(),
		mirror:  NewMirror(cfg.MaxHistoryRecords),
	}

	if store != nil {
		m.blobs = store.Blobs()
		// Copies staged for a previous session's write-backs are stale.
		if err := m.blobs.PurgeTransfer(); err != nil {
			log.Printf("[history] %v", err)
		}
		if err := m.loadHistory(); err != nil {
			return nil, err
		}
	} else {
		dir, err := os.MkdirTemp("", "ropy-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary image directory: %w", err)
		}
		m.tempDir = dir
		m.blobs = storage.NewBlobs(dir)
		m.ids = storage.NewIDGenerator(0)
		log.Println("[history] No store available, history will not survive a restart")
	}

	m.monitor = capture.NewMonitor(cb, m.state, m.blobs, capture.Options{
		MaxTextBytes:   cfg.MaxTextBytes,
		IgnoreKeywords: cfg.IgnoreKeywords,
		ReadsPerSecond: cfg.MaxReadsPerSecond,
	})
	m.writer = writeback.New(cb, m.state)

	return m, nil
}

// loadHistory trims the store to the configured bound and fills the mirror.
func (m *Manager) loadHistory() error {
	removed, err := m.store.CleanupOldRecords(m.cfg.MaxHistoryRecords)
	if err != nil {
		log.Printf("[history] Startup cleanup failed: %v", err)
	} else if removed > 0 {
		log.Printf("[history] Removed %d records over the limit of %d", removed, m.cfg.MaxHistoryRecords)
	}

	recent, err := m.store.Recent(m.cfg.MaxHistoryRecords)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	m.mirror.Replace(recent)

	// The newest entry is most likely still on the clipboard; seeding the
	// dedup state keeps it from being captured again on the first poll.
	if front, ok := m.mirror.Front(); ok {
		m.seedDedup(front)
	}

	log.Printf("[history] Loaded %d records", len(recent))
	return nil
}

// seedDedup sets the dedup state to the content of rec.
func (m *Manager) seedDedup(rec storage.Record) {
	switch rec.ContentType {
	case storage.ContentText:
		m.state.Set(dedup.Text(rec.Content))
	case storage.ContentImage:
		data, err := os.ReadFile(rec.Content)
		if err != nil {
			log.Printf("[history] Failed to read newest image: %v", err)
			return
		}
		img, err := clipboard.DecodePNG(data)
		if err != nil {
			log.Printf("[history] Failed to decode newest image: %v", err)
			return
		}
		m.state.Set(dedup.ImageOf(img))
	}
}

// Ephemeral reports whether history is kept in memory only.
func (m *Manager) Ephemeral() bool {
	return m.store == nil
}

// Monitor returns the capture monitor.
func (m *Manager) Monitor() *capture.Monitor {
	return m.monitor
}

// Writer returns the write-back actor.
func (m *Manager) Writer() *writeback.Actor {
	return m.writer
}

// Start launches the capture, write-back and history loops.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	m.group = g

	log.Println("Starting clipboard manager...")

	if m.watcher == nil {
		log.Println("[clipboard] No change source, capture disabled")
	} else {
		g.Go(func() error {
			log.Println("[clipboard] Starting capture loop")
			err := m.monitor.Run(ctx, m.watcher)
			log.Println("[clipboard] Stopping capture loop")
			return err
		})
	}
	g.Go(func() error {
		return m.writer.Run(ctx)
	})
	g.Go(func() error {
		return m.runHistoryLoop(ctx)
	})
}

// Stop cancels all loops and waits for them to exit.
func (m *Manager) Stop() error {
	log.Println("Stopping clipboard manager...")

	var err error
	if m.cancel != nil {
		m.cancel()
		err = m.group.Wait()
	}

	if m.tempDir != "" {
		os.RemoveAll(m.tempDir)
	}

	log.Println("Clipboard manager stopped")
	return err
}

// runHistoryLoop persists capture events until ctx is done.
func (m *Manager) runHistoryLoop(ctx context.Context) error {
	events := m.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			m.HandleEvent(ev)
		}
	}
}

// HandleEvent persists one capture event and adds it to the mirror. When
// the mirror overflows, the store is trimmed to the same bound. Events
// that fail to persist are dropped.
func (m *Manager) HandleEvent(ev capture.Event) (storage.Record, error) {
	rec, err := m.persist(ev)
	if err != nil {
		return storage.Record{}, err
	}

	switch rec.ContentType {
	case storage.ContentImage:
		log.Printf("[history] Saved image %d", rec.ID)
	default:
		log.Printf("[history] Saved %s %d (%d chars)", rec.ContentType, rec.ID, len(rec.Content))
	}

	m.listenersMu.RLock()
	for _, fn := range m.onAdded {
		fn(rec)
	}
	m.listenersMu.RUnlock()

	return rec, nil
}

func (m *Manager) persist(ev capture.Event) (storage.Record, error) {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	// A clear between capture and now took the image files with it.
	if ev.Type == storage.ContentImage {
		if _, err := os.Stat(ev.Content); err != nil {
			return storage.Record{}, fmt.Errorf("failed to save image: %w", err)
		}
	}

	var rec storage.Record
	if m.store != nil {
		saved, err := m.store.Save(ev.Content, ev.Type)
		if err != nil {
			log.Printf("[history] Failed to save %s: %v", ev.Type, err)
			if ev.Type == storage.ContentImage {
				storage.RemoveImage(ev.Content)
			}
			return storage.Record{}, err
		}
		rec = saved
	} else {
		rec = storage.Record{
			ID:          m.ids.Next(),
			Content:     ev.Content,
			ContentType: ev.Type,
			CreatedAt:   time.Now().UTC().Round(0),
		}
	}

	if evicted := m.mirror.PushFront(rec); len(evicted) > 0 {
		m.evict(evicted)
	}
	return rec, nil
}

// evict brings storage in line with a mirror that just dropped records.
func (m *Manager) evict(evicted []storage.Record) {
	if m.store != nil {
		if _, err := m.store.CleanupOldRecords(m.mirror.Limit()); err != nil {
			log.Printf("[history] Failed to remove old records: %v", err)
		}
		return
	}
	for _, r := range evicted {
		if r.ContentType == storage.ContentImage {
			if err := m.blobs.Remove(r.Content); err != nil {
				log.Printf("[history] Failed to remove image files: %v", err)
			}
		}
	}
}

// Records returns the mirrored history, newest first.
func (m *Manager) Records() []storage.Record {
	return m.mirror.Snapshot()
}

// Get returns a record by id.
func (m *Manager) Get(id uint64) (storage.Record, error) {
	if rec, ok := m.mirror.Get(id); ok {
		return rec, nil
	}
	if m.store != nil {
		rec, ok, err := m.store.Get(id)
		if err != nil {
			return storage.Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
	return storage.Record{}, fmt.Errorf("%w: %d", storage.ErrNotFound, id)
}

// Search returns text records containing keyword, newest first. It reads
// the store directly; in ephemeral mode it scans the mirror.
func (m *Manager) Search(keyword string) ([]storage.Record, error) {
	if m.store != nil {
		return m.store.Search(keyword)
	}
	return m.mirror.Search(keyword), nil
}

// Delete removes a record and reports whether it existed.
func (m *Manager) Delete(id uint64) (bool, error) {
	deleted, err := m.remove(id)
	if err != nil || !deleted {
		return false, err
	}

	m.listenersMu.RLock()
	for _, fn := range m.onDeleted {
		fn(id)
	}
	m.listenersMu.RUnlock()
	return true, nil
}

func (m *Manager) remove(id uint64) (bool, error) {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	var deleted bool
	if m.store != nil {
		ok, err := m.store.Delete(id)
		if err != nil {
			return false, err
		}
		deleted = ok
		m.mirror.Remove(id)
	} else {
		rec, ok := m.mirror.Remove(id)
		if ok && rec.ContentType == storage.ContentImage {
			if err := m.blobs.Remove(rec.Content); err != nil {
				log.Printf("[history] Failed to remove image files: %v", err)
			}
		}
		deleted = ok
	}
	return deleted, nil
}

// Clear removes all history. The dedup state is reset too, so whatever is
// on the clipboard now will be captured again on the next change.
func (m *Manager) Clear() error {
	if err := m.clear(); err != nil {
		return err
	}

	m.listenersMu.RLock()
	for _, fn := range m.onCleared {
		fn()
	}
	m.listenersMu.RUnlock()

	log.Println("[history] Cleared")
	return nil
}

func (m *Manager) clear() error {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			return err
		}
	} else if err := m.blobs.RemoveAll(); err != nil {
		return err
	}
	if err := m.blobs.PurgeTransfer(); err != nil {
		log.Printf("[history] %v", err)
	}

	m.mirror.Clear()
	m.state.Reset()
	return nil
}

// Select queues a history record to be written back to the clipboard.
// Images go through a staged copy, which the writer consumes, so the
// record keeps its own files.
func (m *Manager) Select(id uint64) error {
	req, err := m.copyRequest(id)
	if err != nil {
		return err
	}
	return m.Copy(req)
}

// WriteBack puts a history record back on the clipboard and waits for the
// write to finish, returning its error.
func (m *Manager) WriteBack(ctx context.Context, id uint64) error {
	req, err := m.copyRequest(id)
	if err != nil {
		return err
	}
	return m.writer.Do(ctx, req)
}

func (m *Manager) copyRequest(id uint64) (writeback.CopyRequest, error) {
	rec, err := m.Get(id)
	if err != nil {
		return writeback.CopyRequest{}, err
	}

	if rec.ContentType != storage.ContentImage {
		return writeback.TextRequest(rec.Content), nil
	}
	staged, err := m.blobs.Stage(rec.Content)
	if err != nil {
		return writeback.CopyRequest{}, fmt.Errorf("failed to stage image: %w", err)
	}
	return writeback.StagedImageRequest(staged), nil
}

// Copy queues a raw write-back request.
func (m *Manager) Copy(req writeback.CopyRequest) error {
	return m.writer.Submit(req)
}

// SetRetention changes the history bound, trimming both mirror and store.
func (m *Manager) SetRetention(limit int) error {
	if limit <= 0 {
		return errors.New("retention must be positive")
	}

	m.histMu.Lock()
	defer m.histMu.Unlock()
	m.cfg.MaxHistoryRecords = limit
	if evicted := m.mirror.SetLimit(limit); len(evicted) > 0 || m.store != nil {
		m.evict(evicted)
	}
	return nil
}

// Stats returns history statistics.
func (m *Manager) Stats() (storage.Stats, error) {
	if m.store != nil {
		return m.store.Stats()
	}

	stats := storage.Stats{ByType: make(map[storage.ContentType]int64)}
	for _, r := range m.mirror.Snapshot() {
		stats.TotalRecords++
		stats.ByType[r.ContentType]++
	}
	stats.BlobSize = m.blobs.Size()
	return stats, nil
}

// OnRecordAdded registers fn to run after every new record.
func (m *Manager) OnRecordAdded(fn func(storage.Record)) {
	m.listenersMu.Lock()
	m.onAdded = append(m.onAdded, fn)
	m.listenersMu.Unlock()
}

// OnRecordDeleted registers fn to run after a record is deleted.
func (m *Manager) OnRecordDeleted(fn func(id uint64)) {
	m.listenersMu.Lock()
	m.onDeleted = append(m.onDeleted, fn)
	m.listenersMu.Unlock()
}

// OnCleared registers fn to run after the history is cleared.
func (m *Manager) OnCleared(fn func()) {
	m.listenersMu.Lock()
	m.onCleared = append(m.onCleared, fn)
	m.listenersMu.Unlock()
}
