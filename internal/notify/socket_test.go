package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

type fakeHistory struct {
	mu       sync.Mutex
	records  []storage.Record
	selected []uint64
}

func (f *fakeHistory) Records() []storage.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Record(nil), f.records...)
}

func (f *fakeHistory) Search(keyword string) ([]storage.Record, error) {
	var out []storage.Record
	for _, r := range f.Records() {
		if strings.Contains(r.Content, keyword) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeHistory) WriteBack(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			f.selected = append(f.selected, id)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeHistory) Delete(id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeHistory) Clear() error {
	return errors.New("read-only")
}

func (f *fakeHistory) Stats() (storage.Stats, error) {
	return storage.Stats{TotalRecords: int64(len(f.Records()))}, nil
}

func startServer(t *testing.T, h History) (*SocketServer, string) {
	t.Helper()
	// Unix socket paths are length-limited; keep it short.
	dir, err := os.MkdirTemp("", "ropy")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "s.sock")
	srv := NewSocketServer(path, h)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, path
}

func connect(t *testing.T, path string, onMessage func(Message)) *SocketClient {
	t.Helper()
	c := NewSocketClient()
	if onMessage != nil {
		c.OnMessage(onMessage)
	}
	require.NoError(t, c.Connect(path))
	t.Cleanup(c.Close)
	return c
}

func TestSocket_RequestResponse(t *testing.T) {
	h := &fakeHistory{records: []storage.Record{
		{ID: 2, Content: "second", ContentType: storage.ContentText},
		{ID: 1, Content: "first", ContentType: storage.ContentText},
	}}
	_, path := startServer(t, h)
	c := connect(t, path, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Request(ctx, Message{Type: TypeList})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)

	res, err = c.Request(ctx, Message{Type: TypeList, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "second", res.Records[0].Content)

	res, err = c.Request(ctx, Message{Type: TypeSearch, Keyword: "fir"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, uint64(1), res.Records[0].ID)

	_, err = c.Request(ctx, Message{Type: TypeCopy, ID: 1})
	require.NoError(t, err)
	h.mu.Lock()
	assert.Equal(t, []uint64{1}, h.selected)
	h.mu.Unlock()

	_, err = c.Request(ctx, Message{Type: TypeCopy, ID: 99})
	assert.ErrorContains(t, err, storage.ErrNotFound.Error())

	res, err = c.Request(ctx, Message{Type: TypeDelete, ID: 2})
	require.NoError(t, err)
	assert.True(t, res.Deleted)

	res, err = c.Request(ctx, Message{Type: TypeStats})
	require.NoError(t, err)
	require.NotNil(t, res.Stats)
	assert.Equal(t, int64(1), res.Stats.TotalRecords)

	_, err = c.Request(ctx, Message{Type: TypeClear})
	assert.ErrorContains(t, err, "read-only")

	_, err = c.Request(ctx, Message{Type: "dance"})
	assert.ErrorContains(t, err, "unknown request type")
}

func TestSocket_BroadcastReachesClients(t *testing.T) {
	srv, path := startServer(t, &fakeHistory{})

	events := make(chan Message, 4)
	c := connect(t, path, func(m Message) { events <- m })

	// Make sure the server has registered the client.
	_, err := c.Request(context.Background(), Message{Type: TypeList})
	require.NoError(t, err)
	assert.Equal(t, 1, srv.ClientCount())

	srv.RecordAdded(storage.Record{ID: 7, Content: "new", ContentType: storage.ContentText})
	srv.RecordDeleted(7)
	srv.HistoryCleared()

	var got []Message
	for len(got) < 3 {
		select {
		case m := <-events:
			got = append(got, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d of 3 events", len(got))
		}
	}

	assert.Equal(t, TypeRecordAdded, got[0].Type)
	require.NotNil(t, got[0].Record)
	assert.Equal(t, "new", got[0].Record.Content)
	assert.Equal(t, TypeRecordDeleted, got[1].Type)
	assert.Equal(t, uint64(7), got[1].ID)
	assert.Equal(t, TypeHistoryCleared, got[2].Type)
}

func TestSocketServer_RefusesSecondDaemon(t *testing.T) {
	h := &fakeHistory{records: []storage.Record{{ID: 1, Content: "kept", ContentType: storage.ContentText}}}
	_, path := startServer(t, h)

	second := NewSocketServer(path, &fakeHistory{})
	err := second.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	second.Stop()

	// The first daemon still owns the socket.
	c := connect(t, path, nil)
	res, err := c.Request(context.Background(), Message{Type: TypeList})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "kept", res.Records[0].Content)
}

func TestSocketServer_ReplacesStaleSocketFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "ropy")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "s.sock")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	assert.False(t, Running(path))

	srv := NewSocketServer(path, &fakeHistory{})
	require.NoError(t, srv.Start())
	defer srv.Stop()
	assert.True(t, Running(path))
}

func TestSocketClient_NotConnected(t *testing.T) {
	c := NewSocketClient()
	assert.ErrorIs(t, c.Send(Message{Type: TypeList}), ErrNotConnected)

	assert.Error(t, c.Connect(filepath.Join(t.TempDir(), "missing.sock")))
}
