package install

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/version"
)

// Kind classifies a module's install state.
type Kind int

const (
	NotInstalled Kind = iota
	Installed
	Upgradable
	Orphaned
)

func (k Kind) String() string {
	switch k {
	case Installed:
		return "installed"
	case Upgradable:
		return "upgradable"
	case Orphaned:
		return "orphaned"
	default:
		return "not-installed"
	}
}

// Status is the reconciled state of one module.
type Status struct {
	ModuleID string `json:"module_id"`
	Kind     Kind   `json:"-"`
	State    string `json:"state"`
	// Installed is the recorded version; empty when no record exists.
	Installed string `json:"installed,omitempty"`
	// Latest is the latest catalog version; empty for orphans.
	Latest string  `json:"latest,omitempty"`
	Record *Record `json:"record,omitempty"`
	// Files are the on-disk files attributed to the module.
	Files []string `json:"files,omitempty"`
	// Untracked is set for a catalog module whose files are on disk
	// without an install record.
	Untracked bool `json:"untracked,omitempty"`
}

// Reconcile classifies every catalog module and every installed or on-disk
// module missing from the catalog. files are base names of the files found
// in the install directory (see [ScanDir]).
//
// A module is Upgradable exactly when its recorded version compares less
// than the catalog's latest version. Records and files without a catalog
// entry are reported as Orphaned and never dropped.
func Reconcile(cat *catalog.Catalog, records []Record, files []string) map[string]Status {
	out := make(map[string]Status, cat.Len()+len(records))
	recByID := make(map[string]*Record, len(records))
	for i := range records {
		recByID[records[i].ModuleID] = &records[i]
	}

	owned := attributeFiles(cat, records, files)

	for id, e := range cat.Entries {
		st := Status{ModuleID: id, Latest: e.LatestVersion, Files: owned[id]}
		if rec, ok := recByID[id]; ok {
			st.Record = rec
			st.Installed = rec.InstalledVersion
			st.Kind = Installed
			if version.IsLess(rec.InstalledVersion, e.LatestVersion) {
				st.Kind = Upgradable
			}
		} else {
			st.Kind = NotInstalled
			st.Untracked = len(st.Files) > 0
		}
		out[id] = st.withState()
	}

	for id, rec := range recByID {
		if _, ok := cat.Entries[id]; ok {
			continue
		}
		out[id] = Status{ModuleID: id, Kind: Orphaned, Installed: rec.InstalledVersion, Record: rec, Files: owned[id]}.withState()
	}
	for id, owns := range owned {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = Status{ModuleID: id, Kind: Orphaned, Files: owns}.withState()
	}
	return out
}

func (s Status) withState() Status {
	s.State = s.Kind.String()
	return s
}

// attributeFiles maps files to module IDs. A file listed in an install
// record belongs to that record's module. Other files belong to the
// catalog module whose ID is the longest dot-separated prefix of the file
// name, compared case-insensitively, or to a module named after that
// prefix when no catalog entry matches.
func attributeFiles(cat *catalog.Catalog, records []Record, files []string) map[string][]string {
	byFile := make(map[string]string)
	for _, r := range records {
		for _, f := range r.Files {
			byFile[f] = r.ModuleID
		}
	}
	folded := make(map[string]string, cat.Len()+len(records))
	for id := range cat.Entries {
		folded[strings.ToLower(id)] = id
	}
	for _, r := range records {
		if _, ok := folded[strings.ToLower(r.ModuleID)]; !ok {
			folded[strings.ToLower(r.ModuleID)] = r.ModuleID
		}
	}

	owned := make(map[string][]string)
	for _, f := range files {
		id, ok := byFile[f]
		if !ok {
			id = moduleForFile(f, folded)
		}
		if id == "" {
			continue
		}
		owned[id] = append(owned[id], f)
	}
	for id := range owned {
		sort.Strings(owned[id])
	}
	return owned
}

func moduleForFile(name string, folded map[string]string) string {
	lower := strings.ToLower(name)
	for i := len(lower); i > 0; i-- {
		if i < len(lower) && lower[i] != '.' {
			continue
		}
		if id, ok := folded[lower[:i]]; ok {
			return id
		}
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// legacyDBName is the install database kept in the module directory by
// earlier releases; it is not a module file.
const legacyDBName = "mybible_installed.db"

// ScanDir lists the module files in the install directory: regular,
// non-hidden files at the top level. A missing directory has no files.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "scan install dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, legacyDBName) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}
