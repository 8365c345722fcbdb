package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atharva-Kanherkar/ropy/internal/capture"
	"github.com/Atharva-Kanherkar/ropy/internal/clipboard"
	"github.com/Atharva-Kanherkar/ropy/internal/config"
	"github.com/Atharva-Kanherkar/ropy/internal/dedup"
	"github.com/Atharva-Kanherkar/ropy/internal/storage"
	"github.com/Atharva-Kanherkar/ropy/internal/writeback"
)

func testConfig(t *testing.T, limit int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StoragePath = t.TempDir()
	cfg.MaxHistoryRecords = limit
	return cfg
}

func newTestManager(t *testing.T, limit int) (*Manager, *storage.Store, *clipboard.Memory) {
	t.Helper()
	cfg := testConfig(t, limit)
	store, err := storage.New(cfg.StoragePath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cb := clipboard.NewMemory()
	m, err := NewManager(cfg, cb, nil, store)
	require.NoError(t, err)
	return m, store, cb
}

func contents(records []storage.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Content
	}
	return out
}

func textEvent(s string) capture.Event {
	return capture.NewEvent(storage.ContentText, s)
}

func TestManager_RetentionKeepsMirrorAndStoreInStep(t *testing.T) {
	m, store, _ := newTestManager(t, 3)

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		_, err := m.HandleEvent(textEvent(s))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"e", "d", "c"}, contents(m.Records()))

	all, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c"}, contents(all))
}

func TestManager_StartupTrimsAndPreloads(t *testing.T) {
	cfg := testConfig(t, 10)
	store, err := storage.New(cfg.StoragePath)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		_, err := store.SaveText(fmt.Sprintf("item %d", i))
		require.NoError(t, err)
	}

	cfg.MaxHistoryRecords = 2
	m, err := NewManager(cfg, clipboard.NewMemory(), nil, store)
	require.NoError(t, err)

	assert.Equal(t, []string{"item 4", "item 3"}, contents(m.Records()))
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Newest text is assumed to still be on the clipboard.
	assert.Equal(t, dedup.Text("item 4"), m.state.Current())
}

func TestManager_SaveFailureDropsEvent(t *testing.T) {
	m, store, _ := newTestManager(t, 3)

	_, err := m.HandleEvent(capture.NewEvent(storage.ContentType("bogus"), "x"))
	assert.Error(t, err)
	assert.Empty(t, m.Records())

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestManager_Delete(t *testing.T) {
	m, store, _ := newTestManager(t, 10)

	var deletedIDs []uint64
	m.OnRecordDeleted(func(id uint64) { deletedIDs = append(deletedIDs, id) })

	rec, err := m.HandleEvent(textEvent("remove me"))
	require.NoError(t, err)
	_, err = m.HandleEvent(textEvent("keep me"))
	require.NoError(t, err)

	ok, err := m.Delete(rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"keep me"}, contents(m.Records()))
	_, found, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = m.Delete(rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []uint64{rec.ID}, deletedIDs)
}

func TestManager_ClearResetsDedup(t *testing.T) {
	ctx := context.Background()
	m, store, cb := newTestManager(t, 10)

	require.NoError(t, cb.SetText(ctx, "secret"))
	ev, err := m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	_, err = m.HandleEvent(*ev)
	require.NoError(t, err)

	cleared := false
	m.OnCleared(func() { cleared = true })
	require.NoError(t, m.Clear())

	assert.True(t, cleared)
	assert.Empty(t, m.Records())
	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	// The same content is novel again after a clear.
	ev, err = m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "secret", ev.Content)
}

func TestManager_SearchUsesStore(t *testing.T) {
	m, _, _ := newTestManager(t, 10)

	for _, s := range []string{"Go code", "rust code", "lunch"} {
		_, err := m.HandleEvent(textEvent(s))
		require.NoError(t, err)
	}

	matches, err := m.Search("CODE")
	require.NoError(t, err)
	assert.Equal(t, []string{"rust code", "Go code"}, contents(matches))
}

func TestManager_SelectTextWritesBack(t *testing.T) {
	ctx := context.Background()
	m, _, cb := newTestManager(t, 10)

	rec, err := m.HandleEvent(textEvent("from history"))
	require.NoError(t, err)

	require.NoError(t, m.Select(rec.ID))
	assert.Equal(t, 1, m.Writer().Pending())

	// Selection does not change history.
	assert.Len(t, m.Records(), 1)

	// Drain the queue synchronously.
	done := make(chan struct{})
	m.Writer().OnDone = func(writeback.CopyRequest, error) { close(done) }
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.Writer().Run(ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("selection not written")
	}

	text, err := cb.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from history", text)
}

func TestManager_SelectImageKeepsHistoryFiles(t *testing.T) {
	ctx := context.Background()
	m, _, cb := newTestManager(t, 10)

	img := clipboard.Image{Width: 2, Height: 2, Pix: []byte{
		10, 20, 30, 255, 40, 50, 60, 255,
		70, 80, 90, 255, 100, 110, 120, 255,
	}}
	require.NoError(t, cb.SetImage(ctx, img))
	ev, err := m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	rec, err := m.HandleEvent(*ev)
	require.NoError(t, err)

	require.NoError(t, cb.SetText(ctx, "something else"))

	require.NoError(t, m.Select(rec.ID))

	processed := make(chan writeback.CopyRequest, 1)
	m.Writer().OnDone = func(req writeback.CopyRequest, err error) {
		assert.NoError(t, err)
		processed <- req
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.Writer().Run(runCtx)

	var req writeback.CopyRequest
	select {
	case req = <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("selection not written")
	}

	got, err := cb.Image(ctx)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	// The one-shot transfer copy is consumed; the record's files stay.
	assert.NotEqual(t, rec.Content, req.Path)
	assert.NoFileExists(t, req.Path)
	assert.FileExists(t, rec.Content)
	assert.FileExists(t, storage.ThumbnailPath(rec.Content))

	// Writing it back is an echo, not a new capture.
	ev, err = m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestManager_SelectMissing(t *testing.T) {
	m, _, _ := newTestManager(t, 10)

	err := m.Select(12345)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestManager_SetRetention(t *testing.T) {
	m, store, _ := newTestManager(t, 10)

	for _, s := range []string{"a", "b", "c", "d"} {
		_, err := m.HandleEvent(textEvent(s))
		require.NoError(t, err)
	}

	require.NoError(t, m.SetRetention(2))
	assert.Equal(t, []string{"d", "c"}, contents(m.Records()))
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Error(t, m.SetRetention(0))
}

func TestManager_Ephemeral(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, 2)
	cb := clipboard.NewMemory()

	m, err := NewManager(cfg, cb, nil, nil)
	require.NoError(t, err)
	defer m.Stop()
	assert.True(t, m.Ephemeral())

	require.NoError(t, cb.SetImage(ctx, clipboard.Image{Width: 1, Height: 1, Pix: []byte{1, 2, 3, 255}}))
	ev, err := m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	first, err := m.HandleEvent(*ev)
	require.NoError(t, err)

	second, err := m.HandleEvent(textEvent("hello world"))
	require.NoError(t, err)
	third, err := m.HandleEvent(textEvent("hello again"))
	require.NoError(t, err)
	assert.Greater(t, third.ID, second.ID)

	// The image fell off the end and its files went with it.
	assert.Equal(t, []string{"hello again", "hello world"}, contents(m.Records()))
	assert.NoFileExists(t, first.Content)

	matches, err := m.Search("HELLO")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	ok, err := m.Delete(second.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)

	require.NoError(t, m.Clear())
	assert.Empty(t, m.Records())
}

func TestManager_StartCapturesAndStops(t *testing.T) {
	m, store, cb := newTestManager(t, 10)

	added := make(chan storage.Record, 4)
	m.OnRecordAdded(func(r storage.Record) { added <- r })

	m.Start(context.Background())

	require.NoError(t, cb.SetText(context.Background(), "live copy"))
	select {
	case r := <-added:
		assert.Equal(t, "live copy", r.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("copy not captured")
	}

	require.NoError(t, m.Stop())

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "live copy", latest.Content)
}

func TestManager_WriteBackReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, _, cb := newTestManager(t, 10)
	go m.Writer().Run(ctx)

	img := clipboard.Image{Width: 1, Height: 1, Pix: []byte{5, 6, 7, 255}}
	require.NoError(t, cb.SetImage(ctx, img))
	ev, err := m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	rec, err := m.HandleEvent(*ev)
	require.NoError(t, err)

	boom := errors.New("no display")
	cb.FailWrites(boom)
	assert.ErrorIs(t, m.WriteBack(ctx, rec.ID), boom)

	// The staged copy is gone; the record keeps its files.
	staged, err := filepath.Glob(filepath.Join(m.cfg.StoragePath, "transfer", "*.png"))
	require.NoError(t, err)
	assert.Empty(t, staged)
	assert.FileExists(t, rec.Content)

	cb.FailWrites(nil)
	require.NoError(t, m.WriteBack(ctx, rec.ID))
	got, err := cb.Image(ctx)
	require.NoError(t, err)
	assert.Equal(t, img, got)
}

func TestManager_StartupPurgesStagedCopies(t *testing.T) {
	cfg := testConfig(t, 10)
	store, err := storage.New(cfg.StoragePath)
	require.NoError(t, err)
	defer store.Close()

	path, err := store.Blobs().SaveImage(clipboard.Image{Width: 1, Height: 1, Pix: []byte{1, 1, 1, 255}})
	require.NoError(t, err)
	staged, err := store.Blobs().Stage(path)
	require.NoError(t, err)

	m, err := NewManager(cfg, clipboard.NewMemory(), nil, store)
	require.NoError(t, err)
	assert.NoFileExists(t, staged)

	staged, err = store.Blobs().Stage(path)
	require.NoError(t, err)
	require.NoError(t, m.Clear())
	assert.NoFileExists(t, staged)
}

func TestManager_StartupSeedsDedupWithImage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, 10)
	store, err := storage.New(cfg.StoragePath)
	require.NoError(t, err)
	defer store.Close()

	img := clipboard.Image{Width: 2, Height: 1, Pix: []byte{9, 8, 7, 128, 6, 5, 4, 255}}
	path, err := store.Blobs().SaveImage(img)
	require.NoError(t, err)
	_, err = store.Save(path, storage.ContentImage)
	require.NoError(t, err)

	// The image from the last session is still on the clipboard.
	cb := clipboard.NewMemory()
	require.NoError(t, cb.SetImage(ctx, img))

	m, err := NewManager(cfg, cb, nil, store)
	require.NoError(t, err)

	ev, err := m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Len(t, m.Records(), 1)
}

func TestManager_ConcurrentClearKeepsMirrorInStore(t *testing.T) {
	m, store, _ := newTestManager(t, 50)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := m.HandleEvent(textEvent(fmt.Sprintf("item %d", i)))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, m.Clear())
		}
	}()
	wg.Wait()

	all, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, contents(all), contents(m.Records()))
}

func TestManager_ImageClearedBeforePersistIsDropped(t *testing.T) {
	ctx := context.Background()
	m, store, cb := newTestManager(t, 10)

	require.NoError(t, cb.SetImage(ctx, clipboard.Image{Width: 1, Height: 1, Pix: []byte{4, 4, 4, 255}}))
	ev, err := m.Monitor().HandleChange(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)

	require.NoError(t, m.Clear())

	_, err = m.HandleEvent(*ev)
	assert.Error(t, err)
	assert.Empty(t, m.Records())
	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}
