package manager

import (
	"context"
	"strings"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/store"
)

// Module is a catalog entry together with its install state. Entry is nil
// for orphaned modules.
type Module struct {
	ID     string         `json:"id"`
	Entry  *catalog.Entry `json:"entry,omitempty"`
	Status install.Status `json:"status"`
}

// Language returns the catalog language, or the recorded one for orphans.
func (m Module) Language() string {
	if m.Entry != nil {
		return m.Entry.Language
	}
	if m.Status.Record != nil {
		return m.Status.Record.Language
	}
	return ""
}

// ModuleType returns the catalog module type, or the recorded one for
// orphans.
func (m Module) ModuleType() string {
	if m.Entry != nil {
		return m.Entry.ModuleType
	}
	if m.Status.Record != nil {
		return m.Status.Record.ModuleType
	}
	return ""
}

// Description returns the catalog description, or the recorded one for
// orphans.
func (m Module) Description() string {
	if m.Entry != nil {
		return m.Entry.Description
	}
	if m.Status.Record != nil {
		return m.Status.Record.Description
	}
	return ""
}

// ListOptions selects modules for [Manager.List]. With none of Available,
// Installed and Upgradable set, available modules are listed.
type ListOptions struct {
	Available  bool
	Installed  bool
	Upgradable bool
	Language   string
	ModuleType string
}

// VersionList is the result of [Manager.ListVersions].
type VersionList struct {
	ModuleID string `json:"module_id"`
	// Installed is the installed version, empty when not installed.
	Installed string               `json:"installed,omitempty"`
	Versions  []catalog.VersionRef `json:"versions"`
}

// Search returns the catalog modules matching q with their install state.
func (m *Manager) Search(ctx context.Context, q store.Query) ([]Module, error) {
	if err := m.requireCatalog(ctx); err != nil {
		return nil, err
	}
	entries, err := m.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	statuses, _, err := m.reconcile(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Module, len(entries))
	for i, e := range entries {
		out[i] = Module{ID: e.ModuleID, Entry: e, Status: statuses[e.ModuleID]}
	}
	return out, nil
}

// List returns modules by install state, ordered by name.
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]Module, error) {
	if !opts.Available && !opts.Installed && !opts.Upgradable {
		opts.Available = true
	}
	if opts.Available {
		if err := m.requireCatalog(ctx); err != nil {
			return nil, err
		}
	}
	statuses, cat, err := m.reconcile(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	catalog.SortIDs(ids)

	var out []Module
	for _, id := range ids {
		st := statuses[id]
		mod := Module{ID: id, Entry: cat.Entries[id], Status: st}
		if !opts.matches(st) {
			continue
		}
		if opts.Language != "" && !strings.EqualFold(mod.Language(), opts.Language) {
			continue
		}
		if opts.ModuleType != "" && !strings.EqualFold(mod.ModuleType(), opts.ModuleType) {
			continue
		}
		out = append(out, mod)
	}
	return out, nil
}

func (o ListOptions) matches(st install.Status) bool {
	switch {
	case o.Available && st.Kind != install.Orphaned:
		return true
	case o.Installed && (st.Record != nil || st.Kind == install.Orphaned):
		return true
	case o.Upgradable && st.Kind == install.Upgradable:
		return true
	}
	return false
}

// Info resolves name in the catalog, falling back to install records for
// modules the catalog no longer knows.
func (m *Manager) Info(ctx context.Context, name string) (*Module, error) {
	if err := errs.ValidateModuleName(name); err != nil {
		return nil, err
	}
	statuses, _, err := m.reconcile(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := m.store.Get(ctx, name)
	if err == nil {
		return &Module{ID: entry.ModuleID, Entry: entry, Status: statuses[entry.ModuleID]}, nil
	}
	if !errs.Is(err, errs.ErrCodeNotFound) {
		return nil, err
	}
	rec, ferr := m.tracker.Find(ctx, name)
	if ferr != nil {
		return nil, err
	}
	return &Module{ID: rec.ModuleID, Status: statuses[rec.ModuleID]}, nil
}

// ListVersions returns every (version, source) pair of a module, newest
// first, along with the installed version.
func (m *Manager) ListVersions(ctx context.Context, name string) (*VersionList, error) {
	if err := errs.ValidateModuleName(name); err != nil {
		return nil, err
	}
	if err := m.requireCatalog(ctx); err != nil {
		return nil, err
	}
	entry, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	refs, err := m.store.ListVersions(ctx, entry.ModuleID)
	if err != nil {
		return nil, err
	}
	vl := &VersionList{ModuleID: entry.ModuleID, Versions: refs}
	if rec, ok, err := m.tracker.Record(ctx, entry.ModuleID); err != nil {
		return nil, err
	} else if ok {
		vl.Installed = rec.InstalledVersion
	}
	return vl, nil
}

// Installed returns every install record, ordered by module ID.
func (m *Manager) Installed(ctx context.Context) ([]install.Record, error) {
	return m.tracker.Records(ctx)
}

// Status reconciles the catalog against the install records and the
// install directory.
func (m *Manager) Status(ctx context.Context) (map[string]install.Status, error) {
	statuses, _, err := m.reconcile(ctx)
	return statuses, err
}

func (m *Manager) reconcile(ctx context.Context) (map[string]install.Status, *catalog.Catalog, error) {
	cat, err := m.store.Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, err := m.tracker.Records(ctx)
	if err != nil {
		return nil, nil, err
	}
	var files []string
	if m.cfg.ModulePath != "" {
		if files, err = install.ScanDir(m.cfg.ModulePath); err != nil {
			return nil, nil, err
		}
	}
	return install.Reconcile(cat, records, files), cat, nil
}

// requireCatalog fails with NOT_FOUND while no update has stored a
// catalog yet.
func (m *Manager) requireCatalog(ctx context.Context) error {
	empty, err := m.store.Empty(ctx)
	if err != nil {
		return err
	}
	if empty {
		return errs.New(errs.ErrCodeNotFound, "catalog is empty, run 'mybget update' first")
	}
	return nil
}
