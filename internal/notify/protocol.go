// Package notify exposes the clipboard history over a Unix socket.
//
// The protocol is one JSON object per line in both directions. Clients
// send requests and get exactly one "result" per request, in order. The
// daemon also pushes events to every connected client as history changes.
//
//	→ {"type":"search","keyword":"todo"}
//	← {"type":"result","ok":true,"records":[...]}
//	← {"type":"record_added","record":{...}}
package notify

import (
	"context"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// Request types.
const (
	TypeList   = "list"
	TypeSearch = "search"
	TypeCopy   = "copy"
	TypeDelete = "delete"
	TypeClear  = "clear"
	TypeStats  = "stats"
)

// Response and event types.
const (
	TypeResult         = "result"
	TypeRecordAdded    = "record_added"
	TypeRecordDeleted  = "record_deleted"
	TypeHistoryCleared = "history_cleared"
)

// Message is every line on the wire.
type Message struct {
	Type string `json:"type"`

	// Request fields
	ID      uint64 `json:"id,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Limit   int    `json:"limit,omitempty"`

	// Result fields
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
	Deleted bool             `json:"deleted,omitempty"`
	Records []storage.Record `json:"records,omitempty"`
	Stats   *storage.Stats   `json:"stats,omitempty"`

	// Event fields
	Record *storage.Record `json:"record,omitempty"`
}

// History is what the socket server serves. daemon.Manager implements it.
type History interface {
	Records() []storage.Record
	Search(keyword string) ([]storage.Record, error)
	WriteBack(ctx context.Context, id uint64) error
	Delete(id uint64) (bool, error)
	Clear() error
	Stats() (storage.Stats, error)
}

// handle runs one request against h and builds its result. A copy is
// answered once the clipboard write has finished.
func handle(ctx context.Context, h History, req Message) Message {
	res := Message{Type: TypeResult, OK: true}

	var err error
	switch req.Type {
	case TypeList:
		res.Records = h.Records()
		if req.Limit > 0 && len(res.Records) > req.Limit {
			res.Records = res.Records[:req.Limit]
		}
	case TypeSearch:
		res.Records, err = h.Search(req.Keyword)
	case TypeCopy:
		err = h.WriteBack(ctx, req.ID)
	case TypeDelete:
		res.Deleted, err = h.Delete(req.ID)
	case TypeClear:
		err = h.Clear()
	case TypeStats:
		var stats storage.Stats
		stats, err = h.Stats()
		res.Stats = &stats
	default:
		res.OK = false
		res.Error = "unknown request type: " + req.Type
		return res
	}

	if err != nil {
		res = Message{Type: TypeResult, Error: err.Error()}
	}
	return res
}
