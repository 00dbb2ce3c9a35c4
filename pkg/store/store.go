// Package store keeps the merged catalog in a local SQLite database.
//
// [Store.Replace] swaps the whole catalog inside one transaction. Every
// read runs inside its own transaction, so with the database in WAL mode a
// reader sees either the catalog before a replace or the one after it,
// never a mix.
//
// The store also keeps the last successfully parsed records of every
// source. When a source fails during an update, those records stand in for
// it so its modules are retained.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/registry"
	"github.com/matzehuels/mybget/pkg/version"
)

const driverName = "sqlite3_mybget"

var registerOnce sync.Once

// registerDriver installs a sqlite3 driver with a case-folding function
// (SQLite's LIKE and lower() only fold ASCII) and a collation ordering
// versions with [version.Compare].
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("casefold", strings.ToLower, true); err != nil {
					return err
				}
				return conn.RegisterCollation("version", version.Compare)
			},
		})
	})
}

// Store is the SQLite-backed catalog store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Store, error) {
	registerDriver()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "create catalog dir")
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON", path)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "open catalog %s", path)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "init catalog schema")
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS modules (
	id TEXT PRIMARY KEY,
	name_folded TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	module_type TEXT NOT NULL DEFAULT '',
	latest_version TEXT NOT NULL,
	latest_source TEXT NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_modules_name ON modules(name_folded);`,
		`CREATE TABLE IF NOT EXISTS versions (
	module_id TEXT NOT NULL,
	version TEXT NOT NULL,
	source_id TEXT NOT NULL,
	priority INTEGER NOT NULL,
	download_url TEXT NOT NULL,
	mirrors TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	module_type TEXT NOT NULL DEFAULT '',
	size_bytes INTEGER,
	PRIMARY KEY (module_id, version, source_id)
	);`,
		`CREATE TABLE IF NOT EXISTS source_records (
	source_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (source_id, seq)
	);`,
		`CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
	);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Meta describes the catalog currently stored.
type Meta struct {
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
	RunID     string    `json:"run_id"`
}

// Replace atomically swaps the stored catalog and per-source records for
// cat and perSource.
func (s *Store) Replace(ctx context.Context, cat *catalog.Catalog, perSource map[string][]registry.Record, meta Meta) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "begin replace")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"modules", "versions", "source_records", "meta"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errs.Wrap(errs.ErrCodeInternal, err, "clear %s", table)
		}
	}

	modStmt, err := tx.PrepareContext(ctx, `INSERT INTO modules
	(id, name_folded, title, description, language, module_type, latest_version, latest_source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "prepare modules")
	}
	defer modStmt.Close()
	verStmt, err := tx.PrepareContext(ctx, `INSERT INTO versions
	(module_id, version, source_id, priority, download_url, mirrors, file_name, module_type, size_bytes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "prepare versions")
	}
	defer verStmt.Close()

	for _, id := range cat.IDs() {
		e := cat.Entries[id]
		if _, err = modStmt.ExecContext(ctx, e.ModuleID, strings.ToLower(e.ModuleID), e.Title, e.Description,
			e.Language, e.ModuleType, e.LatestVersion, e.LatestSourceID); err != nil {
			return errs.Wrap(errs.ErrCodeInternal, err, "insert module %s", id)
		}
		for _, refs := range e.VersionsBySource {
			for _, r := range refs {
				var size sql.NullInt64
				if r.SizeBytes != nil {
					size = sql.NullInt64{Int64: *r.SizeBytes, Valid: true}
				}
				if _, err = verStmt.ExecContext(ctx, e.ModuleID, r.Version, r.SourceID, r.Priority,
					r.DownloadURL, strings.Join(r.Mirrors, "\n"), r.FileName, r.ModuleType, size); err != nil {
					return errs.Wrap(errs.ErrCodeInternal, err, "insert version %s/%s", id, r.Version)
				}
			}
		}
	}

	for sid, recs := range perSource {
		for i, rec := range recs {
			data, merr := json.Marshal(rec)
			if merr != nil {
				err = merr
				return errs.Wrap(errs.ErrCodeInternal, err, "encode record")
			}
			if _, err = tx.ExecContext(ctx, `INSERT INTO source_records (source_id, seq, data) VALUES (?, ?, ?)`,
				sid, i, string(data)); err != nil {
				return errs.Wrap(errs.ErrCodeInternal, err, "insert records for %s", sid)
			}
		}
	}

	metaRows := map[string]string{
		"hash":       meta.Hash,
		"updated_at": meta.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"run_id":     meta.RunID,
	}
	for k, v := range metaRows {
		if _, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return errs.Wrap(errs.ErrCodeInternal, err, "insert meta")
		}
	}

	if err = tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "commit replace")
	}
	return nil
}

// Clear removes the stored catalog, source records and metadata.
func (s *Store) Clear(ctx context.Context) error {
	return s.Replace(ctx, catalog.New(), nil, Meta{})
}

// Meta returns metadata about the stored catalog. The zero Meta is
// returned for an empty store.
func (s *Store) Meta(ctx context.Context) (Meta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, errs.Wrap(errs.ErrCodeInternal, err, "read meta")
	}
	defer rows.Close()
	var m Meta
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, errs.Wrap(errs.ErrCodeInternal, err, "read meta")
		}
		switch k {
		case "hash":
			m.Hash = v
		case "run_id":
			m.RunID = v
		case "updated_at":
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil && v != "" {
				m.UpdatedAt = t
			}
		}
	}
	return m, rows.Err()
}

// Empty reports whether the store holds no modules.
func (s *Store) Empty(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules`).Scan(&n); err != nil {
		return false, errs.Wrap(errs.ErrCodeInternal, err, "count modules")
	}
	return n == 0, nil
}

// SourceRecords returns the last stored records of a source, in the order
// they were parsed.
func (s *Store) SourceRecords(ctx context.Context, sourceID string) ([]registry.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM source_records WHERE source_id = ? ORDER BY seq`, sourceID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "read records for %s", sourceID)
	}
	defer rows.Close()

	var recs []registry.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInternal, err, "read records for %s", sourceID)
		}
		var r registry.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInternal, err, "decode record for %s", sourceID)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
