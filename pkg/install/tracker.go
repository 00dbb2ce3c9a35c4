// Package install tracks installed modules and reconciles them with the
// catalog.
//
// Install records live in the state store under the "install:" prefix.
// [Tracker.RecordInstall] and [Tracker.RecordRemoval] are the only
// mutators; callers invoke them after the files have been placed or
// removed successfully, so a failed extraction never leaves a record
// behind.
package install

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/state"
)

// Record describes one installed module.
type Record struct {
	ModuleID         string    `json:"module_id"`
	InstalledVersion string    `json:"installed_version"`
	InstalledAt      time.Time `json:"installed_at"`
	// FilePath is the install directory the files were placed in.
	FilePath    string   `json:"file_path"`
	Files       []string `json:"files"`
	Language    string   `json:"language,omitempty"`
	Description string   `json:"description,omitempty"`
	ModuleType  string   `json:"module_type,omitempty"`
	SourceID    string   `json:"source_id,omitempty"`
}

// Tracker persists install records.
type Tracker struct {
	store state.Store
	now   func() time.Time
}

// NewTracker creates a tracker over st.
func NewTracker(st state.Store) *Tracker {
	return &Tracker{store: st, now: time.Now}
}

func key(id string) string { return state.PrefixInstall + id }

// RecordInstall creates or overwrites the record for rec.ModuleID.
// A zero InstalledAt is set to the current time.
func (t *Tracker) RecordInstall(ctx context.Context, rec Record) error {
	if rec.ModuleID == "" {
		return errs.New(errs.ErrCodeInvalidInput, "install record without module id")
	}
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = t.now().UTC()
	}
	sort.Strings(rec.Files)
	if err := state.SetJSON(ctx, t.store, key(rec.ModuleID), rec); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "record install of %s", rec.ModuleID)
	}
	return nil
}

// RecordRemoval deletes the record for moduleID.
func (t *Tracker) RecordRemoval(ctx context.Context, moduleID string) error {
	if err := t.store.Delete(ctx, key(moduleID)); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "record removal of %s", moduleID)
	}
	return nil
}

// Record returns the record for exactly moduleID.
func (t *Tracker) Record(ctx context.Context, moduleID string) (Record, bool, error) {
	var rec Record
	ok, err := state.GetJSON(ctx, t.store, key(moduleID), &rec)
	if err != nil {
		return Record{}, false, errs.Wrap(errs.ErrCodeInternal, err, "read install record %s", moduleID)
	}
	return rec, ok, nil
}

// Records returns every install record ordered by module ID,
// case-insensitively.
func (t *Tracker) Records(ctx context.Context) ([]Record, error) {
	keys, err := t.store.Keys(ctx, state.PrefixInstall)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "list install records")
	}
	recs := make([]Record, 0, len(keys))
	for _, k := range keys {
		rec, ok, err := t.Record(ctx, strings.TrimPrefix(k, state.PrefixInstall))
		if err != nil {
			return nil, err
		}
		if ok {
			recs = append(recs, rec)
		}
	}
	sortRecords(recs)
	return recs, nil
}

// Find resolves an installed module by name case-insensitively. It fails
// with NOT_FOUND or AMBIGUOUS.
func (t *Tracker) Find(ctx context.Context, name string) (Record, error) {
	recs, err := t.Records(ctx)
	if err != nil {
		return Record{}, err
	}
	var matches []Record
	for _, r := range recs {
		if strings.EqualFold(r.ModuleID, name) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return Record{}, errs.New(errs.ErrCodeNotFound, "module %q is not installed", name)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ModuleID
		}
		return Record{}, errs.New(errs.ErrCodeAmbiguous, "installed module name %q is ambiguous: %s", name, strings.Join(ids, ", "))
	}
}

func sortRecords(recs []Record) {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ModuleID
	}
	catalog.SortIDs(ids)
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.Slice(recs, func(i, j int) bool { return pos[recs[i].ModuleID] < pos[recs[j].ModuleID] })
}
