// Package config resolves the mybget configuration directory and loads the
// user's config.toml.
//
// Directory layout:
//
//	<dir>/config.toml          settings (module_path, timeouts, state backend)
//	<dir>/sources/             registry source descriptors
//	<dir>/.cache/registries/   last fetched registry payloads
//	<dir>/.cache/downloads/    downloaded module archives
//	<dir>/cache.db             SQLite catalog
//	<dir>/state/               ETags, source status and install records
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/mybget/pkg/buildinfo"
	errs "github.com/matzehuels/mybget/pkg/errors"
)

const (
	// AppName is the name of the configuration directory.
	AppName = "mybget"
	// FileName is the name of the configuration file inside the directory.
	FileName = "config.toml"
	// EnvDir overrides the configuration directory when set.
	EnvDir = "MYBGET_CONFIG_DIR"

	legacyFileName = "config.json"
)

// Defaults applied to fields missing from config.toml.
const (
	DefaultConcurrency     = 4
	DefaultFetchTimeout    = 20 * time.Second
	DefaultDownloadTimeout = 30 * time.Second
)

// State backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config holds user settings.
type Config struct {
	ModulePath      string      `toml:"module_path"`
	Concurrency     int         `toml:"concurrency"`
	FetchTimeout    Duration    `toml:"fetch_timeout"`
	DownloadTimeout Duration    `toml:"download_timeout"`
	UserAgent       string      `toml:"user_agent"`
	State           StateConfig `toml:"state"`

	dir string
}

// StateConfig selects where ETags, source status and install records live.
type StateConfig struct {
	Backend  string `toml:"backend"`
	Addr     string `toml:"addr,omitempty"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("20s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a Config with default values rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Concurrency:     DefaultConcurrency,
		FetchTimeout:    Duration{DefaultFetchTimeout},
		DownloadTimeout: Duration{DefaultDownloadTimeout},
		UserAgent:       buildinfo.UserAgent(),
		State:           StateConfig{Backend: BackendFile},
		dir:             dir,
	}
}

// Dir returns the configuration directory: $MYBGET_CONFIG_DIR if set,
// otherwise the platform convention (%APPDATA% on Windows,
// ~/Library/Application Support on macOS, $XDG_CONFIG_HOME or ~/.config
// elsewhere) joined with [AppName].
func Dir() (string, error) {
	if d := os.Getenv(EnvDir); d != "" {
		return d, nil
	}

	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errs.Wrap(errs.ErrCodeConfig, err, "resolve home directory")
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", errs.Wrap(errs.ErrCodeConfig, err, "resolve home directory")
			}
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, AppName), nil
}

// Load reads config.toml from dir. A missing file yields defaults; a
// config.json left by older releases contributes its module_path.
func Load(dir string) (*Config, error) {
	cfg := Default(dir)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := cfg.loadLegacy(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "read %s", FileName)
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errs.Wrap(errs.ErrCodeConfig, err, "parse %s", FileName)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadLegacy() error {
	data, err := os.ReadFile(filepath.Join(c.dir, legacyFileName))
	if err != nil {
		return nil
	}
	var legacy struct {
		ModulePath string `json:"module_path"`
	}
	if json.Unmarshal(data, &legacy) == nil {
		c.ModulePath = legacy.ModulePath
	}
	return nil
}

func (c *Config) normalize() error {
	if c.Concurrency < 1 {
		c.Concurrency = DefaultConcurrency
	}
	if c.FetchTimeout.Duration <= 0 {
		c.FetchTimeout.Duration = DefaultFetchTimeout
	}
	if c.DownloadTimeout.Duration <= 0 {
		c.DownloadTimeout.Duration = DefaultDownloadTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = buildinfo.UserAgent()
	}
	switch c.State.Backend {
	case "":
		c.State.Backend = BackendFile
	case BackendFile:
	case BackendRedis:
		if c.State.Addr == "" {
			return errs.New(errs.ErrCodeConfig, "state backend %q requires addr", BackendRedis)
		}
	default:
		return errs.New(errs.ErrCodeConfig, "unknown state backend %q", c.State.Backend)
	}
	return nil
}

// Save writes the configuration to <dir>/config.toml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrCodeConfig, err, "create config dir")
	}
	f, err := os.Create(filepath.Join(c.dir, FileName))
	if err != nil {
		return errs.Wrap(errs.ErrCodeConfig, err, "write %s", FileName)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return errs.Wrap(errs.ErrCodeConfig, err, "encode %s", FileName)
	}
	return f.Close()
}

// RequireModulePath returns the install directory or a CONFIG_ERROR when
// none has been set.
func (c *Config) RequireModulePath() (string, error) {
	if c.ModulePath == "" {
		return "", errs.New(errs.ErrCodeConfig, "module path not set, run 'mybget set-path <dir>' first")
	}
	return c.ModulePath, nil
}

// Dir returns the configuration directory.
func (c *Config) Dir() string { return c.dir }

// SourcesDir holds registry source descriptors.
func (c *Config) SourcesDir() string { return filepath.Join(c.dir, "sources") }

// CacheDir is the parent of all cached payloads.
func (c *Config) CacheDir() string { return filepath.Join(c.dir, ".cache") }

// RegistryCacheDir holds the last fetched registry payloads.
func (c *Config) RegistryCacheDir() string { return filepath.Join(c.CacheDir(), "registries") }

// DownloadCacheDir holds downloaded module archives.
func (c *Config) DownloadCacheDir() string { return filepath.Join(c.CacheDir(), "downloads") }

// CatalogPath is the SQLite catalog database.
func (c *Config) CatalogPath() string { return filepath.Join(c.dir, "cache.db") }

// StateDir holds the file state backend.
func (c *Config) StateDir() string { return filepath.Join(c.dir, "state") }

// EnsureDirs creates the directory layout.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.dir, c.SourcesDir(), c.RegistryCacheDir(), c.DownloadCacheDir(), c.StateDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errs.Wrap(errs.ErrCodeConfig, err, "create %s", d)
		}
	}
	return nil
}
