// Package catalog merges per-source module records into one catalog.
//
// A catalog is always rebuilt in full from every source's records; it is
// never patched in place. For each module:
//
//   - every (version, source) pair is kept, with duplicate download URLs
//     for the same pair folded into mirrors;
//   - the latest version is the maximum under [version.Compare], ties going
//     to the source with the lowest priority number;
//   - each descriptive field comes from the highest-priority source that
//     defines it, taken from that source's newest version defining it.
//
// Module IDs are unique but may collide case-insensitively across sources.
// Both entries are kept and [Catalog.Lookup] reports AMBIGUOUS for such
// names.
package catalog

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/matzehuels/mybget/pkg/cache"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/version"
)

// VersionRef is one version of a module as offered by one source.
type VersionRef struct {
	Version     string   `json:"version"`
	SourceID    string   `json:"source_id"`
	Priority    int      `json:"priority"`
	DownloadURL string   `json:"download_url"`
	Mirrors     []string `json:"mirrors,omitempty"`
	FileName    string   `json:"file_name"`
	ModuleType  string   `json:"module_type"`
	SizeBytes   *int64   `json:"size_bytes,omitempty"`
}

// URLs returns the download URL followed by its mirrors.
func (r VersionRef) URLs() []string {
	return append([]string{r.DownloadURL}, r.Mirrors...)
}

// Entry is the merged view of one module.
type Entry struct {
	ModuleID    string `json:"module_id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
	ModuleType  string `json:"module_type"`
	// VersionsBySource lists each source's versions, newest first.
	VersionsBySource map[string][]VersionRef `json:"versions_by_source"`
	LatestVersion    string                  `json:"latest_version"`
	LatestSourceID   string                  `json:"latest_source_id"`
}

// Versions returns every (version, source) pair, newest first. Equal
// versions are ordered by source priority.
func (e *Entry) Versions() []VersionRef {
	var out []VersionRef
	for _, refs := range e.VersionsBySource {
		out = append(out, refs...)
	}
	sortRefs(out)
	return out
}

// Latest returns the reference for LatestVersion from LatestSourceID.
func (e *Entry) Latest() VersionRef {
	for _, r := range e.VersionsBySource[e.LatestSourceID] {
		if r.Version == e.LatestVersion {
			return r
		}
	}
	return VersionRef{}
}

// Version returns the highest-priority reference offering v.
func (e *Entry) Version(v string) (VersionRef, bool) {
	for _, r := range e.Versions() {
		if r.Version == v {
			return r, true
		}
	}
	return VersionRef{}, false
}

// sortRefs orders refs newest first, then by priority, then by source ID.
func sortRefs(refs []VersionRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if c := version.Compare(refs[i].Version, refs[j].Version); c != version.Equal {
			return c == version.Greater
		}
		if refs[i].Priority != refs[j].Priority {
			return refs[i].Priority < refs[j].Priority
		}
		return refs[i].SourceID < refs[j].SourceID
	})
}

// Catalog maps module IDs to entries.
type Catalog struct {
	Entries map[string]*Entry `json:"entries"`
}

// New builds a catalog from entries.
func New(entries ...*Entry) *Catalog {
	c := &Catalog{Entries: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		c.Entries[e.ModuleID] = e
	}
	return c
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.Entries) }

// IDs returns module IDs sorted case-insensitively.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Entries))
	for id := range c.Entries {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// SortIDs sorts module IDs by lower-cased form, then byte-wise.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		li, lj := strings.ToLower(ids[i]), strings.ToLower(ids[j])
		if li != lj {
			return li < lj
		}
		return ids[i] < ids[j]
	})
}

// Get returns the entry with exactly this ID.
func (c *Catalog) Get(id string) (*Entry, bool) {
	e, ok := c.Entries[id]
	return e, ok
}

// Lookup resolves a user-supplied name case-insensitively. It fails with
// NOT_FOUND when nothing matches and AMBIGUOUS when the name matches more
// than one module ID.
func (c *Catalog) Lookup(name string) (*Entry, error) {
	var matches []string
	for id := range c.Entries {
		if strings.EqualFold(id, name) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errs.New(errs.ErrCodeNotFound, "module %q not found", name)
	case 1:
		return c.Entries[matches[0]], nil
	default:
		SortIDs(matches)
		return nil, errs.New(errs.ErrCodeAmbiguous, "module name %q is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}

// Hash returns a digest of the catalog contents. Equal catalogs have equal
// hashes.
func (c *Catalog) Hash() string {
	data, err := c.MarshalCanonical()
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}

// MarshalCanonical encodes the catalog with entries ordered by ID.
func (c *Catalog) MarshalCanonical() ([]byte, error) {
	ids := make([]string, 0, len(c.Entries))
	for id := range c.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ordered := make([]*Entry, len(ids))
	for i, id := range ids {
		ordered[i] = c.Entries[id]
	}
	return json.Marshal(ordered)
}
