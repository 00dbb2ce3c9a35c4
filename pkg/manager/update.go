package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/fetch"
	"github.com/matzehuels/mybget/pkg/observability"
	"github.com/matzehuels/mybget/pkg/registry"
	"github.com/matzehuels/mybget/pkg/source"
	"github.com/matzehuels/mybget/pkg/store"
)

// Outcome describes what one update did with a source.
type Outcome string

const (
	// OutcomeFresh means a new payload was fetched and parsed.
	OutcomeFresh Outcome = "fresh"
	// OutcomeUnchanged means the registry answered "not modified".
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeStale means the fetch or parse failed and the records of the
	// last successful update were kept.
	OutcomeStale Outcome = "stale"
	// OutcomeUnreachable means the source failed and had no earlier records.
	OutcomeUnreachable Outcome = "unreachable"
)

// SourceReport is the per-source part of an [UpdateReport].
type SourceReport struct {
	Source  source.Source `json:"source"`
	Outcome Outcome       `json:"outcome"`
	Records int           `json:"records"`
	Err     error         `json:"-"`
}

// UpdateReport summarizes one update run.
type UpdateReport struct {
	RunID    string         `json:"run_id"`
	Sources  []SourceReport `json:"sources"`
	Modules  int            `json:"modules"`
	Hash     string         `json:"hash"`
	Changed  bool           `json:"changed"`
	Duration time.Duration  `json:"duration"`
	// Warnings collects descriptor and per-source failures. They never
	// abort the update.
	Warnings []error `json:"-"`
}

// Fresh returns the number of sources that delivered a new payload.
func (r *UpdateReport) Fresh() int {
	n := 0
	for _, s := range r.Sources {
		if s.Outcome == OutcomeFresh {
			n++
		}
	}
	return n
}

// Update refreshes the catalog from every configured source.
//
// All sources are fetched with bounded parallelism; the merge starts only
// after every attempt has finished. A source that fails to fetch or parse
// contributes the records it contributed last time and is marked stale.
// The new catalog replaces the old one in a single transaction. Only
// failures to read the local configuration or write the catalog are
// returned as errors.
func (m *Manager) Update(ctx context.Context) (*UpdateReport, error) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	start := m.now()
	report := &UpdateReport{RunID: uuid.NewString()}
	hooks := observability.Update()

	sources, warnings, err := m.loadSources(ctx, true)
	if err != nil {
		return nil, err
	}
	report.Warnings = append(report.Warnings, warnings...)
	hooks.OnUpdateStart(ctx, report.RunID, len(sources))
	m.logger.Info("updating catalog", "sources", len(sources), "run", report.RunID)

	prev, err := m.store.Meta(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "read catalog")
	}

	results := m.fetcher.FetchAll(ctx, sources, m.cfg.Concurrency)

	perSource := make(map[string][]registry.Record, len(results))
	for i, res := range results {
		src := &sources[i]
		sr := m.applyResult(ctx, src, res, perSource)
		if sr.Err != nil {
			report.Warnings = append(report.Warnings, sr.Err)
		}
		hooks.OnSourceDone(ctx, src.ID, string(sr.Outcome), sr.Records, sr.Err)
		report.Sources = append(report.Sources, sr)
	}

	cat := catalog.Merge(sources, perSource)
	report.Modules = cat.Len()
	report.Hash = cat.Hash()
	report.Changed = report.Hash != prev.Hash

	meta := store.Meta{Hash: report.Hash, UpdatedAt: m.now().UTC(), RunID: report.RunID}
	if err := m.store.Replace(ctx, cat, perSource, meta); err != nil {
		hooks.OnUpdateComplete(ctx, report.RunID, 0, m.now().Sub(start), err)
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "store catalog")
	}

	for i := range sources {
		if !sources[i].Usable() {
			continue
		}
		if err := source.SaveState(ctx, m.state, sources[i]); err != nil {
			m.logger.Warn("save source state", "source", sources[i].ID, "err", err)
		}
	}

	report.Duration = m.now().Sub(start)
	hooks.OnUpdateComplete(ctx, report.RunID, report.Modules, report.Duration, nil)
	m.logger.Info("catalog updated",
		"modules", report.Modules,
		"fresh", report.Fresh(),
		"warnings", len(report.Warnings),
		"changed", report.Changed,
		"duration", report.Duration)
	return report, nil
}

// applyResult turns one fetch result into the records the source
// contributes to the merge, updating the source status in place.
func (m *Manager) applyResult(ctx context.Context, src *source.Source, res fetch.Result, perSource map[string][]registry.Record) SourceReport {
	sr := SourceReport{Outcome: OutcomeFresh}
	if res.Kind == fetch.Unchanged {
		sr.Outcome = OutcomeUnchanged
	}

	var recs []registry.Record
	err := res.Err
	if err == nil {
		recs, err = registry.Parse(src.ID, res.Body, src.Kind)
		if err != nil {
			// A payload that does not parse must not be revalidated
			// against its ETag next time.
			if ierr := m.fetcher.Invalidate(ctx, *src); ierr != nil {
				m.logger.Warn("invalidate cached registry", "source", src.ID, "err", ierr)
			}
		}
	}

	if err == nil {
		src.Status = source.StatusOK
		src.Message = ""
		src.LastETag = res.ETag
		src.LastFetchedAt = m.now().UTC()
		perSource[src.ID] = recs
		sr.Records = len(recs)
		sr.Source = *src
		m.logger.Debug("source updated", "source", src.ID, "outcome", sr.Outcome, "records", len(recs))
		return sr
	}

	sr.Err = err
	src.Message = errs.UserMessage(err)
	if !src.Usable() {
		src.Status = source.StatusUnreachable
		sr.Outcome = OutcomeUnreachable
		sr.Source = *src
		return sr
	}

	last, lerr := m.store.SourceRecords(ctx, src.ID)
	if lerr != nil {
		m.logger.Warn("read last records", "source", src.ID, "err", lerr)
	}
	if len(last) > 0 {
		src.Status = source.StatusStale
		sr.Outcome = OutcomeStale
		perSource[src.ID] = last
		sr.Records = len(last)
	} else {
		src.Status = source.StatusUnreachable
		sr.Outcome = OutcomeUnreachable
	}
	sr.Source = *src
	m.logger.Warn("source failed, keeping last records", "source", src.ID, "records", len(last), "err", errs.UserMessage(err))
	return sr
}

// loadSources discovers and loads the source descriptors and overlays their
// persisted state. With initDefaults set, an empty sources directory is
// populated with the default registries first.
func (m *Manager) loadSources(ctx context.Context, initDefaults bool) ([]source.Source, []error, error) {
	dir := m.cfg.SourcesDir()
	if initDefaults {
		if err := source.Init(dir); err != nil {
			return nil, nil, err
		}
	}
	paths, err := source.Discover(dir)
	if err != nil {
		return nil, nil, err
	}
	sources, loadErrs := source.Load(paths)
	if err := source.ApplyState(ctx, sources, m.state); err != nil {
		return nil, nil, errs.Wrap(errs.ErrCodeConfig, err, "read source state")
	}
	return sources, loadErrs, nil
}
