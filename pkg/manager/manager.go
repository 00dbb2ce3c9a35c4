// Package manager ties the catalog engine together behind the operations the
// command line exposes: update, search, list, info, versions, install,
// upgrade and remove.
//
// A [Manager] owns every persistence layer of one configuration directory:
// the SQLite catalog, the registry payload cache, and the state store
// holding ETags, source status and install records. All of them are passed
// in explicitly or opened from the [config.Config]; nothing is global.
//
// Updates are serialized. Install, upgrade and remove run per module with
// bounded parallelism; operations on the same module are serialized through
// an [install.Locker].
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/mybget/pkg/cache"
	"github.com/matzehuels/mybget/pkg/config"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/extract"
	"github.com/matzehuels/mybget/pkg/fetch"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/state"
	"github.com/matzehuels/mybget/pkg/store"
)

// Options configures a Manager. Only Config is required.
type Options struct {
	Config *config.Config

	// State overrides the state backend selected in Config.
	State state.Store
	// Transport fetches registries. Defaults to an HTTP transport.
	Transport fetch.Transport
	// Downloader fetches module archives. Defaults to the HTTP transport.
	Downloader fetch.Downloader
	// Extractor unpacks archives. Defaults to [extract.ZipExtractor].
	Extractor extract.Extractor
	Logger    *log.Logger
}

// registryKeyPrefix scopes registry payloads in the payload cache.
const registryKeyPrefix = "registry:"

// Manager runs catalog and install operations for one configuration
// directory. It is safe for concurrent use.
type Manager struct {
	cfg        *config.Config
	state      state.Store
	store      *store.Store
	payloads   *cache.FileCache
	fetcher    *fetch.Fetcher
	downloader fetch.Downloader
	extractor  extract.Extractor
	tracker    *install.Tracker
	locker     *install.Locker
	logger     *log.Logger

	updateMu sync.Mutex
	closed   sync.Once
	now      func() time.Time
}

// New opens the stores of opts.Config and returns a ready Manager. Failing
// to open any of them is a CONFIG_ERROR.
func New(ctx context.Context, opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errs.New(errs.ErrCodeConfig, "no configuration")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	st := opts.State
	if st == nil {
		var err error
		if st, err = OpenState(ctx, cfg); err != nil {
			return nil, err
		}
	}
	payloads, err := cache.NewFileCache(cfg.RegistryCacheDir())
	if err != nil {
		st.Close()
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "open registry cache")
	}
	db, err := store.Open(cfg.CatalogPath())
	if err != nil {
		payloads.Close()
		st.Close()
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "open catalog")
	}

	var httpTransport *fetch.HTTPTransport
	if opts.Transport == nil || opts.Downloader == nil {
		httpTransport = fetch.NewHTTPTransport(cfg.UserAgent, cfg.FetchTimeout.Duration)
	}
	if opts.Transport == nil {
		opts.Transport = httpTransport
	}
	if opts.Downloader == nil {
		opts.Downloader = httpTransport
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.ZipExtractor{}
	}

	m := &Manager{
		cfg:      cfg,
		state:    st,
		store:    db,
		payloads: payloads,
		fetcher: fetch.New(opts.Transport, cache.WithPrefix(payloads, registryKeyPrefix), st, fetch.Options{
			Timeout: cfg.FetchTimeout.Duration,
			Logger:  opts.Logger,
		}),
		downloader: opts.Downloader,
		extractor:  opts.Extractor,
		tracker:    install.NewTracker(st),
		locker:     install.NewLocker(),
		logger:     opts.Logger,
		now:        time.Now,
	}
	m.importLegacy(ctx)
	return m, nil
}

// OpenState opens the state backend selected in cfg.
func OpenState(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case config.BackendRedis:
		st, err := state.NewRedisStore(ctx, state.RedisConfig{
			Addr:     cfg.State.Addr,
			Password: cfg.State.Password,
			DB:       cfg.State.DB,
			Prefix:   cfg.State.Prefix,
		})
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeConfig, err, "connect to redis at %s", cfg.State.Addr)
		}
		return st, nil
	default:
		st, err := state.NewFileStore(cfg.StateDir())
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeConfig, err, "open state dir")
		}
		return st, nil
	}
}

// Config returns the configuration the manager was opened with.
func (m *Manager) Config() *config.Config { return m.cfg }

// Close releases the catalog database and state store. Calls after the
// first are no-ops.
func (m *Manager) Close() error {
	var err error
	m.closed.Do(func() {
		err = m.store.Close()
		if serr := m.state.Close(); err == nil {
			err = serr
		}
		m.payloads.Close()
	})
	return err
}

// importLegacy picks up install records left by earlier releases in the
// install directory.
func (m *Manager) importLegacy(ctx context.Context) {
	if m.cfg.ModulePath == "" {
		return
	}
	n, err := m.tracker.ImportLegacy(ctx, install.LegacyDBPath(m.cfg.ModulePath))
	if err != nil {
		m.logger.Warn("import legacy install records", "err", err)
		return
	}
	if n > 0 {
		m.logger.Info("imported legacy install records", "modules", n)
	}
}
