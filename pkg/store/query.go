package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
)

// Query selects catalog entries. All set fields must match (AND); unset
// fields match everything. Name, Description and Text are case-insensitive
// substring matches, Text looking at both name and description. Language
// and ModuleType are case-insensitive exact matches.
type Query struct {
	Name        string
	Description string
	Language    string
	ModuleType  string
	Text        string
}

// IsZero reports whether q has no predicates.
func (q Query) IsZero() bool { return q == Query{} }

func (q Query) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	contains := func(col, term string) {
		conds = append(conds, "instr(casefold("+col+"), ?) > 0")
		args = append(args, strings.ToLower(term))
	}
	equals := func(col, term string) {
		conds = append(conds, "casefold("+col+") = ?")
		args = append(args, strings.ToLower(term))
	}

	if v := strings.TrimSpace(q.Name); v != "" {
		contains("m.id", v)
	}
	if v := strings.TrimSpace(q.Description); v != "" {
		contains("m.description", v)
	}
	if v := strings.TrimSpace(q.Language); v != "" {
		equals("m.language", v)
	}
	if v := strings.TrimSpace(q.ModuleType); v != "" {
		equals("m.module_type", v)
	}
	if v := strings.TrimSpace(q.Text); v != "" {
		conds = append(conds, "(instr(casefold(m.id), ?) > 0 OR instr(casefold(m.description), ?) > 0)")
		args = append(args, strings.ToLower(v), strings.ToLower(v))
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Query returns the entries matching q, ordered by name case-insensitively.
func (s *Store) Query(ctx context.Context, q Query) ([]*catalog.Entry, error) {
	where, args := q.where()
	var out []*catalog.Entry
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = loadEntries(ctx, tx, where, args)
		return err
	})
	return out, err
}

// Get resolves a module by ID or name, case-insensitively. It fails with
// NOT_FOUND or AMBIGUOUS.
func (s *Store) Get(ctx context.Context, name string) (*catalog.Entry, error) {
	var out []*catalog.Entry
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = loadEntries(ctx, tx, "m.name_folded = ?", []any{strings.ToLower(name)})
		return err
	})
	if err != nil {
		return nil, err
	}
	switch len(out) {
	case 0:
		return nil, errs.New(errs.ErrCodeNotFound, "module %q not found", name)
	case 1:
		return out[0], nil
	default:
		ids := make([]string, len(out))
		for i, e := range out {
			ids[i] = e.ModuleID
		}
		return nil, errs.New(errs.ErrCodeAmbiguous, "module name %q is ambiguous: %s", name, strings.Join(ids, ", "))
	}
}

// ListVersions returns every (version, source) pair of a module, newest
// first.
func (s *Store) ListVersions(ctx context.Context, name string) ([]catalog.VersionRef, error) {
	e, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.Versions(), nil
}

// Catalog loads the complete stored catalog.
func (s *Store) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	var entries []*catalog.Entry
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		entries, err = loadEntries(ctx, tx, "1 = 1", nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return catalog.New(entries...), nil
}

// read runs fn in a read transaction so multi-statement reads see one
// snapshot.
func (s *Store) read(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "begin read")
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "read catalog")
	}
	return nil
}

func loadEntries(ctx context.Context, tx *sql.Tx, where string, args []any) ([]*catalog.Entry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT m.id, m.title, m.description, m.language, m.module_type,
	m.latest_version, m.latest_source FROM modules m WHERE `+where+` ORDER BY m.name_folded, m.id`, args...)
	if err != nil {
		return nil, err
	}
	var (
		entries []*catalog.Entry
		byID    = make(map[string]*catalog.Entry)
	)
	for rows.Next() {
		e := &catalog.Entry{VersionsBySource: make(map[string][]catalog.VersionRef)}
		if err := rows.Scan(&e.ModuleID, &e.Title, &e.Description, &e.Language, &e.ModuleType,
			&e.LatestVersion, &e.LatestSourceID); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
		byID[e.ModuleID] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	vrows, err := tx.QueryContext(ctx, `SELECT v.module_id, v.version, v.source_id, v.priority, v.download_url,
	v.mirrors, v.file_name, v.module_type, v.size_bytes
	FROM versions v JOIN modules m ON m.id = v.module_id
	WHERE `+where+`
	ORDER BY v.module_id, v.source_id, v.version COLLATE version DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer vrows.Close()
	for vrows.Next() {
		var (
			moduleID, mirrors string
			size              sql.NullInt64
			r                 catalog.VersionRef
		)
		if err := vrows.Scan(&moduleID, &r.Version, &r.SourceID, &r.Priority, &r.DownloadURL,
			&mirrors, &r.FileName, &r.ModuleType, &size); err != nil {
			return nil, err
		}
		if mirrors != "" {
			r.Mirrors = strings.Split(mirrors, "\n")
		}
		if size.Valid {
			n := size.Int64
			r.SizeBytes = &n
		}
		if e := byID[moduleID]; e != nil {
			e.VersionsBySource[r.SourceID] = append(e.VersionsBySource[r.SourceID], r)
		}
	}
	return entries, vrows.Err()
}
