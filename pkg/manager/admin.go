package manager

import (
	"context"
	"os"
	"path/filepath"

	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/source"
	"github.com/matzehuels/mybget/pkg/state"
)

// Sources returns the configured sources with their persisted status, in
// priority order. Descriptor errors are returned alongside; the affected
// sources are included with status unreachable.
func (m *Manager) Sources(ctx context.Context) ([]source.Source, []error, error) {
	return m.loadSources(ctx, false)
}

// Reinit writes the default source descriptors. With force set, existing
// default descriptors are overwritten; other descriptors, including every
// .extra registry, are left alone.
func (m *Manager) Reinit(force bool) ([]string, error) {
	return source.WriteDefaults(m.cfg.SourcesDir(), force)
}

// Purge clears cached data. A partial purge removes the registry and
// download caches, stored ETags and source status, and the catalog; install
// records and settings survive. A full purge removes the whole
// configuration directory, after which the Manager must not be used.
func (m *Manager) Purge(ctx context.Context, full bool) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	if full {
		if err := m.state.Clear(ctx, ""); err != nil {
			return errs.Wrap(errs.ErrCodeInternal, err, "clear state")
		}
		m.Close()
		if err := os.RemoveAll(m.cfg.Dir()); err != nil {
			return errs.Wrap(errs.ErrCodeConfig, err, "remove %s", m.cfg.Dir())
		}
		m.logger.Info("configuration purged", "dir", m.cfg.Dir())
		return nil
	}

	if err := m.payloads.Clear(); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "clear registry cache")
	}
	if err := os.RemoveAll(m.cfg.DownloadCacheDir()); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "clear download cache")
	}
	for _, prefix := range []string{state.PrefixETag, state.PrefixSource} {
		if err := m.state.Clear(ctx, prefix); err != nil {
			return errs.Wrap(errs.ErrCodeInternal, err, "clear state %s", prefix)
		}
	}
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.logger.Info("cache purged", "dir", m.cfg.CacheDir())
	return m.cfg.EnsureDirs()
}

// SetInstallDir sets and saves the install directory, creating it when
// missing. Install records kept by earlier releases in that directory are
// imported.
func (m *Manager) SetInstallDir(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", errs.New(errs.ErrCodeInvalidInput, "install directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errs.Wrap(errs.ErrCodeConfig, err, "resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", errs.Wrap(errs.ErrCodeConfig, err, "create %s", abs)
	}
	m.cfg.ModulePath = abs
	if err := m.cfg.Save(); err != nil {
		return "", err
	}
	m.importLegacy(ctx)
	return abs, nil
}
