// Package parsecache persists full request parses so that remounting a
// collection does not re-parse unchanged files. An entry is only served
// when the stored modification time equals the file's current one.
package parsecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/types"
)

// Version is bumped whenever the stored parse format changes. Opening a
// cache written with another version clears it.
const Version = "1"

// MemoryPath opens a private in-memory cache.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS cache_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	collection_path TEXT    NOT NULL,
	file_path       TEXT    NOT NULL,
	mtime_ns        INTEGER NOT NULL,
	parsed_data     TEXT    NOT NULL,
	parsed_at       INTEGER NOT NULL,
	PRIMARY KEY (collection_path, file_path)
);

CREATE INDEX IF NOT EXISTS idx_entries_parsed_at ON entries (parsed_at);
`

// Store is a SQLite-backed parse cache.
type Store struct {
	db     *sql.DB
	path   string
	logger logging.Logger
	now    func() time.Time
}

// Stats describes the cache content.
type Stats struct {
	Path        string
	Entries     int64
	Collections int64
	Oldest      time.Time
}

// Open opens or creates the cache at path and prunes entries older than
// maxAge. A zero maxAge disables pruning.
func Open(path string, maxAge time.Duration, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeWriteFailed, path, "failed to create cache directory")
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, path, "failed to open parse cache")
	}
	// One connection keeps an in-memory database alive and serializes
	// writers on a file database.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   path,
		logger: logger.WithComponent("parsecache"),
		now:    time.Now,
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if maxAge > 0 {
		n, err := s.Prune(maxAge)
		if err != nil {
			s.logger.Warn(context.Background(), err, "Startup prune failed")
		} else if n > 0 {
			s.logger.Debug(context.Background(), "Pruned parse cache", "entries", n)
		}
	}
	return s, nil
}

func (s *Store) init() error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.path, "failed to initialize parse cache schema")
	}

	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_meta WHERE key = 'version'`).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return errors.WrapIO(err, errors.ErrCodeReadFailed, s.path, "failed to read parse cache version")
	}
	if stored == Version {
		return nil
	}

	if stored != "" {
		s.logger.Info(ctx, "Parse cache version changed, clearing", "from", stored, "to", Version)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.path, "failed to reset parse cache")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_meta (key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, Version)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.path, "failed to write parse cache version")
	}
	return nil
}

// Path returns the location of the cache.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached parse of filePath if it was stored for modTime.
// Read failures are logged and reported as a miss.
func (s *Store) Get(collectionPath, filePath string, modTime time.Time) (*types.Request, bool) {
	var (
		mtime int64
		data  string
	)
	err := s.db.QueryRowContext(context.Background(),
		`SELECT mtime_ns, parsed_data FROM entries WHERE collection_path = ? AND file_path = ?`,
		clean(collectionPath), clean(filePath),
	).Scan(&mtime, &data)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Warn(context.Background(), err, "Parse cache read failed", "path", filePath)
		return nil, false
	}
	if mtime != modTime.UnixNano() {
		return nil, false
	}

	var req types.Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		s.logger.Warn(context.Background(), err, "Parse cache entry is corrupt", "path", filePath)
		return nil, false
	}
	return &req, true
}

// Put stores the parse of filePath taken at modTime.
func (s *Store) Put(collectionPath, filePath string, modTime time.Time, req *types.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.WrapInternal(err, errors.ErrCodeInternalError, "failed to encode parse")
	}
	_, err = s.db.ExecContext(context.Background(),
		`INSERT INTO entries (collection_path, file_path, mtime_ns, parsed_data, parsed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection_path, file_path) DO UPDATE SET
			mtime_ns = excluded.mtime_ns,
			parsed_data = excluded.parsed_data,
			parsed_at = excluded.parsed_at`,
		clean(collectionPath), clean(filePath), modTime.UnixNano(), string(data), s.now().UnixNano(),
	)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, filePath, "failed to write parse cache entry")
	}
	return nil
}

// Invalidate removes the entry of filePath.
func (s *Store) Invalidate(collectionPath, filePath string) error {
	_, err := s.db.ExecContext(context.Background(),
		`DELETE FROM entries WHERE collection_path = ? AND file_path = ?`,
		clean(collectionPath), clean(filePath))
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, filePath, "failed to invalidate parse cache entry")
	}
	return nil
}

// InvalidateCollection removes every entry of a collection.
func (s *Store) InvalidateCollection(collectionPath string) error {
	_, err := s.db.ExecContext(context.Background(),
		`DELETE FROM entries WHERE collection_path = ?`, clean(collectionPath))
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, collectionPath, "failed to invalidate collection cache")
	}
	return nil
}

// Move re-keys the entry of oldPath, and every entry below it when oldPath
// is a directory, to the same place under newPath.
func (s *Store) Move(collectionPath, oldPath, newPath string) error {
	cp, oldKey, newKey := clean(collectionPath), clean(oldPath), clean(newPath)
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, oldPath, "failed to begin cache move")
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT file_path FROM entries WHERE collection_path = ?`, cp)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeReadFailed, oldPath, "failed to list cache entries")
	}
	var moves [][2]string
	prefix := oldKey + string(filepath.Separator)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			_ = rows.Close()
			return errors.WrapIO(err, errors.ErrCodeReadFailed, oldPath, "failed to scan cache entry")
		}
		switch {
		case fp == oldKey:
			moves = append(moves, [2]string{fp, newKey})
		case strings.HasPrefix(fp, prefix):
			moves = append(moves, [2]string{fp, newKey + fp[len(oldKey):]})
		}
	}
	if err := rows.Close(); err != nil {
		return errors.WrapIO(err, errors.ErrCodeReadFailed, oldPath, "failed to list cache entries")
	}

	for _, m := range moves {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO entries (collection_path, file_path, mtime_ns, parsed_data, parsed_at)
			 SELECT collection_path, ?, mtime_ns, parsed_data, parsed_at
			 FROM entries WHERE collection_path = ? AND file_path = ?`,
			m[1], cp, m[0])
		if err != nil {
			return errors.WrapIO(err, errors.ErrCodeWriteFailed, m[0], "failed to move cache entry")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entries WHERE collection_path = ? AND file_path = ?`, cp, m[0]); err != nil {
			return errors.WrapIO(err, errors.ErrCodeWriteFailed, m[0], "failed to move cache entry")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, oldPath, "failed to commit cache move")
	}
	return nil
}

// Prune removes entries parsed more than maxAge ago.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(context.Background(), `DELETE FROM entries WHERE parsed_at < ?`, cutoff)
	if err != nil {
		return 0, errors.WrapIO(err, errors.ErrCodeWriteFailed, s.path, "failed to prune parse cache")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM entries`); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.path, "failed to clear parse cache")
	}
	return nil
}

// Stats returns entry counts and the age of the oldest entry.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Path: s.path}
	var oldest sql.NullInt64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*), COUNT(DISTINCT collection_path), MIN(parsed_at) FROM entries`,
	).Scan(&st.Entries, &st.Collections, &oldest)
	if err != nil {
		return st, errors.WrapIO(err, errors.ErrCodeReadFailed, s.path, "failed to read parse cache stats")
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64)
	}
	return st, nil
}

// String returns a one-line summary of the stats.
func (st Stats) String() string {
	if st.Entries == 0 {
		return fmt.Sprintf("%s: empty", st.Path)
	}
	return fmt.Sprintf("%s: %d entries in %d collections, oldest %s",
		st.Path, st.Entries, st.Collections, st.Oldest.Format(time.RFC3339))
}

func clean(path string) string {
	return filepath.Clean(path)
}
