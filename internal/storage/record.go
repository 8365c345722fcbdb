package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// ContentType says how to interpret a record's Content.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"     // Content is the path of the full-size PNG
	ContentFilePath ContentType = "file_path" // Content is one path per line
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentImage, ContentFilePath:
		return true
	default:
		return false
	}
}

// Record is one clipboard history entry.
// ID doubles as the storage key, so ordering by ID is chronological.
type Record struct {
	ID          uint64      `json:"id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	CreatedAt   time.Time   `json:"created_at"`
}

// encodeKey returns the 8-byte big-endian key for id.
func encodeKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// decodeKey is the inverse of encodeKey.
func decodeKey(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("invalid key length %d", len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}

func encodeRecord(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to deserialize record: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
