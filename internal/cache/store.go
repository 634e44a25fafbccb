// Package cache persists per-document pipeline results keyed by content hash
// and stage in a local SQLite index.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Stage string

const (
	StageClassification Stage = "classification"
	StageExtraction     Stage = "extraction"
	StageAnalysis       Stage = "analysis"
)

func (s Stage) Valid() bool {
	switch s {
	case StageClassification, StageExtraction, StageAnalysis:
		return true
	default:
		return false
	}
}

// DefaultVersion tags entries written by this build. Bump it when payload
// shapes or prompts change so older entries read as stale.
const DefaultVersion = "docintel/v1"

type Entry struct {
	ContentHash string          `json:"content_hash"`
	Stage       Stage           `json:"stage"`
	Payload     json.RawMessage `json:"payload"`
	Version     string          `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Options struct {
	Logger *slog.Logger
	// Version is compared against stored entries; a mismatch is a miss.
	Version string
	Now     func() time.Time
}

// Store is a content-addressed cache. A Store whose index could not be opened
// or recovered runs disabled: every Get misses and every Put is dropped.
type Store struct {
	db       *sql.DB
	path     string
	version  string
	log      *slog.Logger
	now      func() time.Time
	disabled bool
}

// Open opens (or creates) the index at path. A corrupt index is moved to
// <path>.corrupt-<unixms> and replaced with an empty one. Only an empty path
// is an error; every other failure yields a disabled Store.
func Open(path string, opts Options) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing cache path")
	}
	p = filepath.Clean(p)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	s := &Store{
		path:    p,
		version: strings.TrimSpace(opts.Version),
		log:     logger,
		now:     opts.Now,
	}
	if s.version == "" {
		s.version = DefaultVersion
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		s.disable("create cache dir", err)
		return s, nil
	}

	db, err := openIndex(p)
	if err == nil {
		s.db = db
		return s, nil
	}
	s.log.Warn("cache index unreadable; starting fresh", "path", p, "error", err)

	moved, mvErr := moveAside(p, s.now())
	if mvErr != nil {
		s.disable("move corrupt index", mvErr)
		return s, nil
	}
	s.log.Info("corrupt cache index moved aside", "path", moved)

	db, err = openIndex(p)
	if err != nil {
		s.disable("reopen cache index", err)
		return s, nil
	}
	s.db = db
	return s, nil
}

func (s *Store) disable(op string, err error) {
	s.disabled = true
	s.log.Warn("cache disabled; all lookups will miss", "op", op, "path", s.path, "error", err)
}

func (s *Store) Disabled() bool {
	return s == nil || s.disabled || s.db == nil
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// WithVersion returns a view of the same index that reads and writes
// entries under version. Closing either the view or s closes the shared index.
func (s *Store) WithVersion(version string) *Store {
	version = strings.TrimSpace(version)
	if s == nil || version == "" {
		return s
	}
	v := *s
	v.version = version
	return &v
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the entry for (hash, stage). Entries from another version or
// with a payload that is not valid JSON are stale and reported as misses.
func (s *Store) Get(ctx context.Context, hash string, stage Stage) (Entry, bool) {
	if s.Disabled() {
		return Entry{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	hash = strings.TrimSpace(hash)
	if hash == "" || !stage.Valid() {
		return Entry{}, false
	}

	var (
		payload   string
		version   string
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT payload, version, created_at_unix_ms
FROM cache_entries
WHERE content_hash = ? AND stage = ?
`, hash, string(stage)).Scan(&payload, &version, &createdMs)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("cache read failed; treating as miss", "stage", stage, "error", err)
		}
		return Entry{}, false
	}
	if version != s.version {
		s.log.Debug("stale cache entry", "stage", stage, "entry_version", version, "version", s.version)
		return Entry{}, false
	}
	if !json.Valid([]byte(payload)) {
		s.log.Warn("cache entry payload is not valid JSON; treating as miss", "stage", stage)
		return Entry{}, false
	}
	return Entry{
		ContentHash: hash,
		Stage:       stage,
		Payload:     json.RawMessage(payload),
		Version:     version,
		CreatedAt:   time.UnixMilli(createdMs),
	}, true
}

// Put stores payload for (hash, stage). An existing row is replaced in one
// statement, so concurrent writers to the same key resolve last-writer-wins.
func (s *Store) Put(ctx context.Context, hash string, stage Stage, payload json.RawMessage) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return errors.New("missing content hash")
	}
	if !stage.Valid() {
		return fmt.Errorf("invalid cache stage %q", stage)
	}
	if !json.Valid(payload) {
		return errors.New("cache payload is not valid JSON")
	}
	if s.Disabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache_entries(content_hash, stage, payload, version, created_at_unix_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(content_hash, stage) DO UPDATE SET
  payload = excluded.payload,
  version = excluded.version,
  created_at_unix_ms = excluded.created_at_unix_ms
`, hash, string(stage), string(payload), s.version, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("cache put %s: %w", stage, err)
	}
	return nil
}

type Stats struct {
	Path     string        `json:"path"`
	Version  string        `json:"version"`
	Disabled bool          `json:"disabled"`
	Entries  int           `json:"entries"`
	Stale    int           `json:"stale"`
	ByStage  map[Stage]int `json:"by_stage"`
	Bytes    int64         `json:"payload_bytes"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	out := Stats{Path: s.Path(), Version: s.Version(), Disabled: s.Disabled(), ByStage: map[Stage]int{}}
	if out.Disabled {
		return out, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT stage, version, COUNT(1), COALESCE(SUM(LENGTH(payload)), 0)
FROM cache_entries
GROUP BY stage, version
`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stage   string
			version string
			n       int
			size    int64
		)
		if err := rows.Scan(&stage, &version, &n, &size); err != nil {
			return out, err
		}
		out.Entries += n
		out.Bytes += size
		if version != s.version {
			out.Stale += n
			continue
		}
		out.ByStage[Stage(stage)] += n
	}
	return out, rows.Err()
}

// Prune deletes stale entries and entries created before now-olderThan.
// olderThan <= 0 removes only stale entries.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.Disabled() {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cutoff := int64(0)
	if olderThan > 0 {
		cutoff = s.now().Add(-olderThan).UnixMilli()
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM cache_entries
WHERE version <> ? OR created_at_unix_ms < ?
`, s.version, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("cache pruned", "removed", n)
	}
	return n, nil
}

func openIndex(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	var check string
	if err := db.QueryRow(`PRAGMA quick_check;`).Scan(&check); err != nil {
		return fmt.Errorf("pragma quick_check: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("quick_check: %s", check)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	// Schema versions:
	// - v1: cache_entries keyed by (content_hash, stage)
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS cache_entries (
  content_hash TEXT NOT NULL,
  stage TEXT NOT NULL,
  payload TEXT NOT NULL,
  version TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL,
  PRIMARY KEY (content_hash, stage)
);
`); err != nil {
		return fmt.Errorf("create table v1: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d;", targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

func moveAside(path string, now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", path, now.UnixMilli())
	if err := os.Rename(path, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, dst+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return dst, nil
}
