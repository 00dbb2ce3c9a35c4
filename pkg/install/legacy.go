package install

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	errs "github.com/matzehuels/mybget/pkg/errors"
)

// LegacyDBPath returns the path of the install database that earlier
// releases kept inside the module directory.
func LegacyDBPath(moduleDir string) string {
	return filepath.Join(moduleDir, legacyDBName)
}

// ReadLegacy reads install records from an earlier release's install
// database. A missing database yields no records.
func ReadLegacy(ctx context.Context, path string) ([]Record, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "open %s", path)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT m.id, m.name, COALESCE(m.language, ''), m.description,
	m.update_date, m.install_date FROM installedmodule m ORDER BY m.id`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "read %s", path)
	}
	type legacyModule struct {
		rowID int64
		rec   Record
	}
	var mods []legacyModule
	for rows.Next() {
		var (
			m         legacyModule
			installed string
		)
		if err := rows.Scan(&m.rowID, &m.rec.ModuleID, &m.rec.Language, &m.rec.Description,
			&m.rec.InstalledVersion, &installed); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.ErrCodeConfig, err, "read %s", path)
		}
		m.rec.InstalledAt = parseLegacyTime(installed)
		m.rec.FilePath = filepath.Dir(path)
		mods = append(mods, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "read %s", path)
	}

	recs := make([]Record, 0, len(mods))
	for _, m := range mods {
		frows, err := db.QueryContext(ctx, `SELECT file_name FROM installedfile WHERE module_id = ? ORDER BY id`, m.rowID)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeConfig, err, "read %s", path)
		}
		for frows.Next() {
			var name string
			if err := frows.Scan(&name); err != nil {
				frows.Close()
				return nil, errs.Wrap(errs.ErrCodeConfig, err, "read %s", path)
			}
			m.rec.Files = append(m.rec.Files, name)
		}
		frows.Close()
		recs = append(recs, m.rec)
	}
	return recs, nil
}

var legacyTimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseLegacyTime(s string) time.Time {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ImportLegacy copies records from an earlier release's install database
// into the tracker. Modules already tracked are left alone. It returns the
// number of records imported.
func (t *Tracker) ImportLegacy(ctx context.Context, path string) (int, error) {
	legacy, err := ReadLegacy(ctx, path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range legacy {
		if _, ok, err := t.Record(ctx, rec.ModuleID); err != nil {
			return n, err
		} else if ok {
			continue
		}
		if err := t.RecordInstall(ctx, rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
