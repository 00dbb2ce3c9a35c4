package catalog

import (
	"slices"
	"sort"

	"github.com/matzehuels/mybget/pkg/registry"
	"github.com/matzehuels/mybget/pkg/source"
	"github.com/matzehuels/mybget/pkg/version"
)

// Merge builds a catalog from scratch out of each source's records.
// perSource maps source IDs to records; sources supplies priorities.
// Records from source IDs missing in sources rank after all known sources.
// The result does not depend on map iteration order.
func Merge(sources []source.Source, perSource map[string][]registry.Record) *Catalog {
	priority := make(map[string]int, len(sources))
	for _, s := range sources {
		priority[s.ID] = s.Priority
	}
	unknown := len(sources)

	sourceIDs := make([]string, 0, len(perSource))
	for id := range perSource {
		sourceIDs = append(sourceIDs, id)
	}
	rank := func(id string) int {
		if p, ok := priority[id]; ok {
			return p
		}
		return unknown
	}
	sort.Slice(sourceIDs, func(i, j int) bool {
		pi, pj := rank(sourceIDs[i]), rank(sourceIDs[j])
		if pi != pj {
			return pi < pj
		}
		return sourceIDs[i] < sourceIDs[j]
	})

	builders := make(map[string]*builder)
	var order []string
	for _, sid := range sourceIDs {
		p := rank(sid)
		for _, rec := range perSource[sid] {
			b, ok := builders[rec.ModuleID]
			if !ok {
				b = &builder{id: rec.ModuleID, bySource: make(map[string][]*contribution)}
				builders[rec.ModuleID] = b
				order = append(order, rec.ModuleID)
			}
			b.add(sid, p, rec)
		}
	}

	cat := &Catalog{Entries: make(map[string]*Entry, len(builders))}
	for _, id := range order {
		cat.Entries[id] = builders[id].build()
	}
	return cat
}

type contribution struct {
	ref VersionRef
	rec registry.Record
}

type builder struct {
	id       string
	bySource map[string][]*contribution
	sources  []string // in priority order
}

func (b *builder) add(sid string, priority int, rec registry.Record) {
	list, seen := b.bySource[sid]
	if !seen {
		b.sources = append(b.sources, sid)
	}
	for _, c := range list {
		if c.ref.Version != rec.Version {
			continue
		}
		if rec.DownloadURL != c.ref.DownloadURL && !slices.Contains(c.ref.Mirrors, rec.DownloadURL) {
			c.ref.Mirrors = append(c.ref.Mirrors, rec.DownloadURL)
		}
		return
	}
	b.bySource[sid] = append(list, &contribution{
		ref: VersionRef{
			Version:     rec.Version,
			SourceID:    sid,
			Priority:    priority,
			DownloadURL: rec.DownloadURL,
			FileName:    rec.FileName,
			ModuleType:  rec.ModuleType,
			SizeBytes:   rec.SizeBytes,
		},
		rec: rec,
	})
}

func (b *builder) build() *Entry {
	e := &Entry{ModuleID: b.id, VersionsBySource: make(map[string][]VersionRef, len(b.sources))}

	var all []VersionRef
	for _, sid := range b.sources {
		contribs := b.bySource[sid]
		sort.SliceStable(contribs, func(i, j int) bool {
			return version.Compare(contribs[i].ref.Version, contribs[j].ref.Version) == version.Greater
		})
		refs := make([]VersionRef, len(contribs))
		for i, c := range contribs {
			refs[i] = c.ref
		}
		e.VersionsBySource[sid] = refs
		all = append(all, refs...)
	}

	sortRefs(all)
	if len(all) > 0 {
		e.LatestVersion = all[0].Version
		e.LatestSourceID = all[0].SourceID
	}

	e.Title = b.field(func(r registry.Record) *string { return r.Title })
	e.Description = b.field(func(r registry.Record) *string { return r.Description })
	e.Language = b.field(func(r registry.Record) *string { return r.Language })
	e.ModuleType = b.field(func(r registry.Record) *string {
		if r.ModuleType == "" {
			return nil
		}
		return &r.ModuleType
	})
	return e
}

// field returns the first defined value walking sources in priority order
// and, within a source, versions newest first.
func (b *builder) field(get func(registry.Record) *string) string {
	for _, sid := range b.sources {
		for _, c := range b.bySource[sid] {
			if v := get(c.rec); v != nil && *v != "" {
				return *v
			}
		}
	}
	return ""
}
