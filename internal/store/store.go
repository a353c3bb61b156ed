// Package store persists analyzed signatures in SQLite with a write-behind
// policy: writes land in an in-memory LRU synchronously (the in-memory copy
// is the source of truth) and drain to the database from a background
// flusher. Reads go through the LRU and fall back to the database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pixelsense/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// StoredSignature is the durable record for one analyzed image.
type StoredSignature struct {
	ContentHash      string
	PerceptualHash   uint64
	CombinedKey      string
	Confidence       float64
	SupportCount     int
	ObservationCount int
	Caption          string
	OCRText          string
	Width            int
	Height           int
	IsAnimated       bool
	ContentType      string
	MIMEType         string
	SignalsJSON      string
	ContributingWaves string // comma-joined wave names
	IsComplete       bool
	FirstSeen        time.Time
	LastSeen         time.Time
	OriginalProcessingTimeMS int64
}

// Options tunes the store.
type Options struct {
	FlushInterval time.Duration
	LRUSize       int
	LRUExpiry     time.Duration
	EMAAlpha      float64
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		FlushInterval: 500 * time.Millisecond,
		LRUSize:       1024,
		LRUExpiry:     10 * time.Minute,
		EMAAlpha:      0.2,
	}
}

// Store is the durable signature store.
type Store struct {
	db   *sql.DB
	opts Options

	lru *lruCache

	pendingMu sync.Mutex
	pending   map[string]*StoredSignature // content_hash -> latest queued write

	flushMu sync.Mutex // single-flight around the flush transaction

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Open initializes the SQLite database at path and starts the background
// flusher. Use ":memory:" for tests.
func Open(path string, opts Options) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	log := logging.Get(logging.CategoryStore)
	log.Info("opening signature store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set synchronous=NORMAL: %v", err)
	}

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.LRUSize <= 0 {
		opts.LRUSize = 1024
	}
	if opts.EMAAlpha <= 0 || opts.EMAAlpha >= 1 {
		opts.EMAAlpha = 0.2
	}

	s := &Store{
		db:      db,
		opts:    opts,
		lru:     newLRUCache(opts.LRUSize, opts.LRUExpiry),
		pending: make(map[string]*StoredSignature),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	go s.flushLoop()
	return s, nil
}

// initialize creates the signatures table and its secondary indices.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS signatures (
		content_hash TEXT PRIMARY KEY,
		perceptual_hash INTEGER NOT NULL DEFAULT 0,
		combined_key TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		support_count INTEGER NOT NULL DEFAULT 0,
		observation_count INTEGER NOT NULL DEFAULT 0,
		caption TEXT,
		ocr_text TEXT,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		is_animated BOOLEAN NOT NULL DEFAULT FALSE,
		content_type TEXT,
		mime_type TEXT,
		signals_json TEXT,
		contributing_waves TEXT,
		is_complete BOOLEAN NOT NULL DEFAULT FALSE,
		first_seen INTEGER NOT NULL DEFAULT 0,
		last_seen INTEGER NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_signatures_perceptual ON signatures(perceptual_hash);
	CREATE INDEX IF NOT EXISTS idx_signatures_confidence ON signatures(confidence);
	CREATE INDEX IF NOT EXISTS idx_signatures_last_seen ON signatures(last_seen);
	CREATE INDEX IF NOT EXISTS idx_signatures_content_type ON signatures(content_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DB exposes the underlying connection so sibling components (the
// discriminator ledger and effectiveness tables) share one database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close performs a final synchronous flush and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done

	if err := s.Flush(); err != nil {
		logging.Get(logging.CategoryStore).Error("final flush failed: %v", err)
	}
	logging.Get(logging.CategoryStore).Info("closing signature store")
	return s.db.Close()
}
