package manager

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/observability"
	"github.com/matzehuels/mybget/pkg/version"
)

// InstallOptions configures [Manager.Install].
type InstallOptions struct {
	// Version installs this exact version instead of the latest. It is
	// only accepted for a single module.
	Version string
	// Reinstall installs again over an installed module. The previous
	// files and record stay until the new files are in place.
	Reinstall bool
}

// ItemResult is the outcome for one name in a batch operation.
type ItemResult struct {
	Name     string   `json:"name"`
	ModuleID string   `json:"module_id,omitempty"`
	Version  string   `json:"version,omitempty"`
	Files    []string `json:"files,omitempty"`
	// Err explains a skip or a failure.
	Err error `json:"-"`
}

// BatchResult collects the per-module outcomes of a batch operation in the
// order the names were given. One module failing never stops the others.
type BatchResult struct {
	Succeeded []ItemResult `json:"succeeded"`
	Skipped   []ItemResult `json:"skipped"`
	Failed    []ItemResult `json:"failed"`
}

// Err returns the failures as a single error, or nil.
func (b *BatchResult) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	list := make([]error, len(b.Failed))
	for i, f := range b.Failed {
		list[i] = f.Err
	}
	return errs.NewMultiError(list)
}

type outcome int

const (
	succeeded outcome = iota
	skipped
	failed
)

type batchItem struct {
	res     ItemResult
	outcome outcome
}

// runBatch applies fn to every name with bounded parallelism and sorts the
// outcomes into a BatchResult, keeping input order.
func (m *Manager) runBatch(ctx context.Context, names []string, fn func(ctx context.Context, name string) batchItem) *BatchResult {
	items := make([]batchItem, len(names))
	var g errgroup.Group
	g.SetLimit(max(m.cfg.Concurrency, 1))
	for i, name := range names {
		g.Go(func() error {
			items[i] = fn(ctx, name)
			items[i].res.Name = name
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{}
	for _, it := range items {
		switch it.outcome {
		case succeeded:
			out.Succeeded = append(out.Succeeded, it.res)
		case skipped:
			out.Skipped = append(out.Skipped, it.res)
		default:
			out.Failed = append(out.Failed, it.res)
		}
	}
	return out
}

func fail(err error) batchItem {
	return batchItem{res: ItemResult{Err: err}, outcome: failed}
}

// Install downloads and installs the named modules. An installed module is
// skipped with ALREADY_INSTALLED unless opts.Reinstall is set. Errors
// returned directly are configuration-level and concern the whole batch.
func (m *Manager) Install(ctx context.Context, names []string, opts InstallOptions) (*BatchResult, error) {
	names = ParseNames(names)
	if len(names) == 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, "no module names given")
	}
	if opts.Version != "" && len(names) > 1 {
		return nil, errs.New(errs.ErrCodeInvalidInput, "a version can only be given for a single module")
	}
	dest, err := m.cfg.RequireModulePath()
	if err != nil {
		return nil, err
	}
	if err := m.requireCatalog(ctx); err != nil {
		return nil, err
	}

	return m.runBatch(ctx, names, func(ctx context.Context, name string) batchItem {
		return m.installOne(ctx, dest, name, opts)
	}), nil
}

func (m *Manager) installOne(ctx context.Context, dest, name string, opts InstallOptions) batchItem {
	if err := errs.ValidateModuleName(name); err != nil {
		return fail(err)
	}
	entry, err := m.store.Get(ctx, name)
	if err != nil {
		return fail(err)
	}
	unlock := m.locker.Lock(entry.ModuleID)
	defer unlock()

	ref, ok := entry.Latest(), true
	if opts.Version != "" {
		ref, ok = entry.Version(opts.Version)
	}
	if !ok || ref.DownloadURL == "" {
		return fail(errs.New(errs.ErrCodeNotFound, "version %q of %s not found", opts.Version, entry.ModuleID))
	}

	rec, installed, err := m.findInstalled(ctx, entry.ModuleID)
	if err != nil {
		return fail(err)
	}
	res := ItemResult{ModuleID: entry.ModuleID, Version: ref.Version}
	var prev *install.Record
	if installed {
		if !opts.Reinstall {
			res.Version = rec.InstalledVersion
			res.Err = errs.New(errs.ErrCodeAlreadyInstalled,
				"%s %s is already installed, use upgrade or reinstall", rec.ModuleID, rec.InstalledVersion)
			return batchItem{res: res, outcome: skipped}
		}
		prev = &rec
	}

	files, err := m.place(ctx, dest, entry, ref, prev)
	if err != nil {
		res.Err = err
		return batchItem{res: res, outcome: failed}
	}
	res.Files = files
	return batchItem{res: res, outcome: succeeded}
}

// place downloads ref, extracts it into dest and records the install.
// When prev is set, its files and record are replaced only after the new
// files are in place; any failure before that leaves prev untouched.
func (m *Manager) place(ctx context.Context, dest string, entry *catalog.Entry, ref catalog.VersionRef, prev *install.Record) (files []string, err error) {
	start := m.now()
	defer func() {
		observability.Install().OnInstall(ctx, entry.ModuleID, ref.Version, len(files), m.now().Sub(start), err)
	}()

	archive, err := m.fetchArchive(ctx, ref)
	if err != nil {
		return nil, err
	}
	staged, err := m.extractor.Stage(ctx, archive, dest, entry.ModuleID)
	if err != nil {
		if errs.Is(err, errs.ErrCodeExtractionFailed) {
			// Drop the cached archive so the next attempt downloads it again.
			os.Remove(archive)
		}
		return nil, err
	}
	owners, err := m.fileOwners(ctx, dest, entry.ModuleID)
	if err != nil {
		staged.Discard()
		return nil, err
	}
	if err := staged.Commit(func(name string) bool { return owners[strings.ToLower(name)] }); err != nil {
		return nil, err
	}
	files = staged.Files

	rec := install.Record{
		ModuleID:         entry.ModuleID,
		InstalledVersion: ref.Version,
		FilePath:         dest,
		Files:            files,
		Language:         entry.Language,
		Description:      entry.Description,
		ModuleType:       ref.ModuleType,
		SourceID:         ref.SourceID,
	}
	if err := m.tracker.RecordInstall(ctx, rec); err != nil {
		return nil, err
	}
	if prev != nil {
		m.dropReplaced(ctx, *prev, rec)
	}
	m.logger.Info("installed", "module", entry.ModuleID, "version", ref.Version, "files", len(files))
	return files, nil
}

// fileOwners returns the lower-cased names of files in dir that belong to
// install records other than moduleID.
func (m *Manager) fileOwners(ctx context.Context, dir, moduleID string) (map[string]bool, error) {
	recs, err := m.tracker.Records(ctx)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool)
	for _, r := range recs {
		if strings.EqualFold(r.ModuleID, moduleID) {
			continue
		}
		if r.FilePath != "" && filepath.Clean(r.FilePath) != filepath.Clean(dir) {
			continue
		}
		for _, f := range r.Files {
			owned[strings.ToLower(f)] = true
		}
	}
	return owned, nil
}

// dropReplaced removes the files of prev that next no longer lists, and
// prev's record when it was kept under a differently cased ID. Failures
// are logged; the new install is already complete.
func (m *Manager) dropReplaced(ctx context.Context, prev, next install.Record) {
	keep := make(map[string]bool, len(next.Files))
	if prev.FilePath == "" || filepath.Clean(prev.FilePath) == filepath.Clean(next.FilePath) {
		for _, f := range next.Files {
			keep[strings.ToLower(f)] = true
		}
	}
	var stale []string
	for _, f := range prev.Files {
		if !keep[strings.ToLower(f)] {
			stale = append(stale, f)
		}
	}
	dir := prev.FilePath
	if dir == "" {
		dir = next.FilePath
	}
	if err := m.removeFiles(dir, stale); err != nil {
		m.logger.Warn("remove replaced files", "module", prev.ModuleID, "err", err)
	}
	if prev.ModuleID != next.ModuleID {
		if err := m.tracker.RecordRemoval(ctx, prev.ModuleID); err != nil {
			m.logger.Warn("remove replaced record", "module", prev.ModuleID, "err", err)
		}
	}
}

// fetchArchive returns the local path of the archive for ref, downloading
// it into the download cache unless already present. Mirrors are tried in
// order after the primary URL.
func (m *Manager) fetchArchive(ctx context.Context, ref catalog.VersionRef) (string, error) {
	dst := filepath.Join(m.cfg.DownloadCacheDir(), ArchiveName(ref.DownloadURL))
	if fi, err := os.Stat(dst); err == nil && fi.Size() > 0 {
		m.logger.Debug("using cached archive", "path", dst)
		return dst, nil
	}

	var lastErr error
	for _, u := range ref.URLs() {
		dctx, cancel := context.WithTimeout(ctx, m.cfg.DownloadTimeout.Duration)
		n, err := m.downloader.Download(dctx, u, dst)
		cancel()
		if err == nil {
			m.logger.Debug("downloaded", "url", u, "bytes", n)
			return dst, nil
		}
		lastErr = err
		m.logger.Warn("download failed", "url", u, "err", err)
	}
	return "", errs.Wrap(errs.ErrCodeSourceUnreachable, lastErr, "download %s", ref.FileName)
}

// ArchiveName is the download cache file name for a module URL: the
// unescaped last path segment, with ".zip" appended when missing.
func ArchiveName(downloadURL string) string {
	name := downloadURL
	if u, err := url.Parse(downloadURL); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	if dec, err := url.PathUnescape(name); err == nil {
		name = dec
	}
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "module"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	return name
}

// Remove deletes the files of the named installed modules and their
// install records.
func (m *Manager) Remove(ctx context.Context, names []string) (*BatchResult, error) {
	names = ParseNames(names)
	if len(names) == 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, "no module names given")
	}
	return m.runBatch(ctx, names, m.removeOne), nil
}

func (m *Manager) removeOne(ctx context.Context, name string) batchItem {
	if err := errs.ValidateModuleName(name); err != nil {
		return fail(err)
	}
	unlock := m.locker.Lock(name)
	defer unlock()

	rec, err := m.tracker.Find(ctx, name)
	if err != nil {
		return fail(err)
	}
	res := ItemResult{ModuleID: rec.ModuleID, Version: rec.InstalledVersion, Files: rec.Files}
	if err := m.removeInstalled(ctx, rec); err != nil {
		res.Err = err
		return batchItem{res: res, outcome: failed}
	}
	m.logger.Info("removed", "module", rec.ModuleID, "files", len(rec.Files))
	return batchItem{res: res, outcome: succeeded}
}

// removeInstalled deletes the recorded files of rec, then the record. The
// record is kept when a file cannot be removed.
func (m *Manager) removeInstalled(ctx context.Context, rec install.Record) (err error) {
	defer func() {
		observability.Install().OnRemove(ctx, rec.ModuleID, len(rec.Files), err)
	}()
	dir := rec.FilePath
	if dir == "" {
		dir = m.cfg.ModulePath
	}
	if err := m.removeFiles(dir, rec.Files); err != nil {
		return err
	}
	return m.tracker.RecordRemoval(ctx, rec.ModuleID)
}

// removeFiles deletes the named files from dir. Missing files are ignored;
// names with path separators are never followed out of dir.
func (m *Manager) removeFiles(dir string, files []string) error {
	for _, f := range files {
		if strings.ContainsAny(f, `/\`) || f == ".." {
			continue
		}
		if err := os.Remove(filepath.Join(dir, f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.ErrCodeInternal, err, "remove %s", f)
		}
	}
	return nil
}

// findInstalled looks up the install record of a catalog module, matching
// the ID case-insensitively.
func (m *Manager) findInstalled(ctx context.Context, moduleID string) (install.Record, bool, error) {
	rec, err := m.tracker.Find(ctx, moduleID)
	switch {
	case err == nil:
		return rec, true, nil
	case errs.Is(err, errs.ErrCodeNotFound):
		return install.Record{}, false, nil
	default:
		return install.Record{}, false, err
	}
}

// Upgrade reinstalls the named modules at their latest catalog version
// when that is newer than the installed one. With all set, every
// upgradable module is upgraded and names are ignored.
func (m *Manager) Upgrade(ctx context.Context, names []string, all bool) (*BatchResult, error) {
	names = ParseNames(names)
	if !all && len(names) == 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, "name modules to upgrade or use --all")
	}
	dest, err := m.cfg.RequireModulePath()
	if err != nil {
		return nil, err
	}
	if err := m.requireCatalog(ctx); err != nil {
		return nil, err
	}

	if all {
		statuses, _, err := m.reconcile(ctx)
		if err != nil {
			return nil, err
		}
		names = names[:0]
		for id, st := range statuses {
			if st.Kind == install.Upgradable {
				names = append(names, id)
			}
		}
		catalog.SortIDs(names)
	}
	return m.runBatch(ctx, names, func(ctx context.Context, name string) batchItem {
		return m.upgradeOne(ctx, dest, name)
	}), nil
}

func (m *Manager) upgradeOne(ctx context.Context, dest, name string) batchItem {
	if err := errs.ValidateModuleName(name); err != nil {
		return fail(err)
	}
	rec, err := m.tracker.Find(ctx, name)
	if err != nil {
		return fail(err)
	}
	entry, err := m.store.Get(ctx, rec.ModuleID)
	if err != nil {
		return fail(err)
	}
	unlock := m.locker.Lock(entry.ModuleID)
	defer unlock()

	// Re-read under the lock; a concurrent remove may have won.
	rec, installed, err := m.findInstalled(ctx, entry.ModuleID)
	if err != nil {
		return fail(err)
	}
	if !installed {
		return fail(errs.New(errs.ErrCodeNotFound, "module %q is not installed", name))
	}
	latest := entry.Latest()
	res := ItemResult{ModuleID: entry.ModuleID, Version: rec.InstalledVersion}
	if !version.IsLess(rec.InstalledVersion, latest.Version) {
		res.Err = errs.New(errs.ErrCodeAlreadyInstalled, "%s %s is up to date", entry.ModuleID, rec.InstalledVersion)
		return batchItem{res: res, outcome: skipped}
	}

	files, err := m.place(ctx, dest, entry, latest, &rec)
	if err != nil {
		res.Err = err
		return batchItem{res: res, outcome: failed}
	}
	res.Version, res.Files = latest.Version, files
	return batchItem{res: res, outcome: succeeded}
}
