package source

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	errs "github.com/matzehuels/mybget/pkg/errors"
)

// Descriptor file extensions, in registration order.
const (
	ExtRegistry = ".registry"
	ExtExtra    = ".extra"
	ExtTOML     = ".toml"
)

var extOrder = []string{ExtRegistry, ExtExtra, ExtTOML}

// tomlDescriptor is the schema of a .toml source descriptor.
type tomlDescriptor struct {
	URL      string `toml:"url"`
	Kind     Kind   `toml:"kind"`
	Disabled bool   `toml:"disabled"`
}

// Discover returns the descriptor files in dir in registration order:
// all .registry files, then .extra, then .toml, each sorted by name.
// A missing directory yields no descriptors.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "read sources dir")
	}

	byExt := make(map[string][]string, len(extOrder))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := filepath.Ext(e.Name())
		byExt[ext] = append(byExt[ext], filepath.Join(dir, e.Name()))
	}

	var paths []string
	for _, ext := range extOrder {
		group := byExt[ext]
		sort.Strings(group)
		paths = append(paths, group...)
	}
	return paths, nil
}

// Load reads descriptor files into sources. Each readable descriptor yields
// one Source whose priority is its position in the returned slice. A
// descriptor repeating an earlier URL is dropped. An unreadable or invalid
// descriptor yields a Source with status unreachable and a CONFIG_ERROR in
// the returned error list; loading always continues.
func Load(paths []string) ([]Source, []error) {
	var (
		sources []Source
		loadErr []error
		seen    = make(map[string]bool)
	)
	for _, path := range paths {
		src, skip, err := loadOne(path)
		if skip {
			continue
		}
		if err != nil {
			src.Status = StatusUnreachable
			src.LoadErr = err
			src.Message = errs.UserMessage(err)
			loadErr = append(loadErr, err)
		} else {
			if seen[src.URL] {
				continue
			}
			seen[src.URL] = true
		}
		src.Priority = len(sources)
		sources = append(sources, src)
	}
	return sources, loadErr
}

func loadOne(path string) (src Source, skip bool, err error) {
	name := filepath.Base(path)
	src = Source{ID: name, Path: path, Status: StatusOK}

	data, err := os.ReadFile(path)
	if err != nil {
		return src, false, errs.Wrap(errs.ErrCodeConfig, err, "read source %s", name)
	}

	switch filepath.Ext(name) {
	case ExtRegistry:
		src.Kind = KindCore
		src.URL = firstLine(string(data))
	case ExtExtra:
		src.Kind = KindExtra
		src.URL = firstLine(string(data))
	case ExtTOML:
		var d tomlDescriptor
		if _, err := toml.Decode(string(data), &d); err != nil {
			return src, false, errs.Wrap(errs.ErrCodeConfig, err, "parse source %s", name)
		}
		if d.Disabled {
			return src, true, nil
		}
		src.URL = strings.TrimSpace(d.URL)
		switch d.Kind {
		case "", KindCore:
			src.Kind = KindCore
		case KindExtra:
			src.Kind = KindExtra
		default:
			return src, false, errs.New(errs.ErrCodeConfig, "source %s: unknown kind %q", name, d.Kind)
		}
	default:
		return src, true, nil
	}

	if err := errs.ValidateURL(src.URL); err != nil {
		return src, false, errs.Wrap(errs.ErrCodeConfig, err, "source %s", name)
	}
	return src, false, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
