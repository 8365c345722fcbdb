// Package storage handles persistence of clipboard history.
//
// Architecture:
// - SQLite database holding one ordered key/value table of records
// - File system for image blobs (full size + thumbnail)
//
// Directory structure:
// ~/.local/share/ropy/
// ├── ropy.db                   # SQLite database
// ├── images/
// │   ├── 1739871234567890123.png
// │   ├── 1739871234567890123_thumb.png
// └── transfer/
//
// The records table is keyed by the 8-byte big-endian record id. SQLite
// compares BLOBs with memcmp, so ORDER BY key is chronological order and
// the table behaves like an ordered log.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS clipboard_records (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// Store is the durable, ordered clipboard history.
type Store struct {
	db     *sql.DB
	dbPath string
	blobs  *Blobs
	ids    *IDGenerator

	closeOnce sync.Once
	closeErr  error
}

// New opens (or creates) the history store under baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "ropy.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes every statement; this is a single-writer store.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
		blobs:  NewBlobs(baseDir),
	}

	lastID, err := store.lastID()
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ids = NewIDGenerator(lastID)

	return store, nil
}

// Blobs returns the image blob manager for this store.
func (s *Store) Blobs() *Blobs {
	return s.blobs
}

// lastID returns the largest stored id, or 0 for an empty store.
func (s *Store) lastID() (uint64, error) {
	var key []byte
	err := s.db.QueryRow(`SELECT key FROM clipboard_records ORDER BY key DESC LIMIT 1`).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last key: %w", err)
	}
	return decodeKey(key)
}

// Save stores new content and returns the record it created.
func (s *Store) Save(content string, contentType ContentType) (Record, error) {
	if !contentType.Valid() {
		return Record{}, fmt.Errorf("failed to save record: unknown content type %q", contentType)
	}

	record := Record{
		ID:          s.ids.Next(),
		Content:     content,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC().Round(0),
	}

	value, err := encodeRecord(record)
	if err != nil {
		return Record{}, err
	}

	if _, err := s.db.Exec(`INSERT INTO clipboard_records (key, value) VALUES (?, ?)`,
		encodeKey(record.ID), value); err != nil {
		return Record{}, fmt.Errorf("failed to insert record: %w", err)
	}

	return record, nil
}

// SaveText stores a text record.
func (s *Store) SaveText(content string) (Record, error) {
	return s.Save(content, ContentText)
}

// Get retrieves a record by id. The bool is false when it does not exist.
func (s *Store) Get(id uint64) (Record, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM clipboard_records WHERE key = ?`, encodeKey(id)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to query record: %w", err)
	}

	record, err := decodeRecord(value)
	if err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

// Latest returns the newest record, if any.
func (s *Store) Latest() (Record, bool, error) {
	records, err := s.Recent(1)
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[0], true, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.query(`SELECT value FROM clipboard_records ORDER BY key DESC LIMIT ?`, limit)
}

// All returns every record, newest first.
func (s *Store) All() ([]Record, error) {
	return s.query(`SELECT value FROM clipboard_records ORDER BY key DESC`)
}

// Search returns text records whose content contains keyword, ignoring
// case, newest first. It is a linear scan over the whole history, which is
// fine for the hundreds to low thousands of records we keep.
func (s *Store) Search(keyword string) ([]Record, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	var matches []Record
	for _, r := range all {
		if r.ContentType == ContentText && strings.Contains(strings.ToLower(r.Content), needle) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

func (s *Store) query(q string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record, err := decodeRecord(value)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Delete removes a record and, for images, its blob files. It reports
// whether a record was removed.
func (s *Store) Delete(id uint64) (bool, error) {
	record, ok, err := s.Get(id)
	if err != nil || !ok {
		return false, err
	}

	res, err := s.db.Exec(`DELETE FROM clipboard_records WHERE key = ?`, encodeKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	if n > 0 && record.ContentType == ContentImage {
		if err := s.blobs.Remove(record.Content); err != nil {
			log.Printf("[storage] Failed to remove image files for %d: %v", id, err)
		}
	}
	return n > 0, nil
}

// Clear removes every record and every image file.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM clipboard_records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return s.blobs.RemoveAll()
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clipboard_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// CleanupOldRecords keeps the newest keep records and removes the rest,
// oldest first. It never removes more than total-keep records and returns
// how many it removed.
func (s *Store) CleanupOldRecords(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	total, err := s.Count()
	if err != nil {
		return 0, err
	}
	if total <= keep {
		return 0, nil
	}

	oldest, err := s.query(`SELECT value FROM clipboard_records ORDER BY key ASC LIMIT ?`, total-keep)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	removed := 0
	for _, r := range oldest {
		res, err := tx.Exec(`DELETE FROM clipboard_records WHERE key = ?`, encodeKey(r.ID))
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to delete record %d: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	for _, r := range oldest {
		if r.ContentType != ContentImage {
			continue
		}
		if err := s.blobs.Remove(r.Content); err != nil {
			log.Printf("[storage] Failed to remove image files for %d: %v", r.ID, err)
		}
	}

	return removed, nil
}

// Flush forces pending writes into the main database file.
func (s *Store) Flush() error {
	var busy, logFrames, checkpointed int
	err := s.db.QueryRow(`PRAGMA wal_checkpoint(FULL)`).Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return fmt.Errorf("failed to flush database: %w", err)
	}
	return nil
}

// Close flushes and closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if err := s.Flush(); err != nil {
			log.Printf("[storage] %v", err)
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Stats holds storage statistics.
type Stats struct {
	TotalRecords int64                 `json:"total_records"`
	ByType       map[ContentType]int64 `json:"by_type"`
	DatabaseSize int64                 `json:"database_size"`
	BlobSize     int64                 `json:"blob_size"`
}

// Stats returns statistics about stored records.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{ByType: make(map[ContentType]int64)}

	all, err := s.All()
	if err != nil {
		return stats, err
	}
	for _, r := range all {
		stats.TotalRecords++
		stats.ByType[r.ContentType]++
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	stats.BlobSize = s.blobs.Size()

	return stats, nil
}
