package source

import (
	"os"
	"path/filepath"
	"sort"

	errs "github.com/matzehuels/mybget/pkg/errors"
)

// Defaults maps descriptor file names to the public MyBible registries.
var Defaults = map[string]string{
	"mybible.zone.registry":      "https://mybible.zone/repository/registry/registry.zip",
	"myb.1gb.ru.registry":        "http://myb.1gb.ru/registry.zip",
	"mybible.infoo.pro.registry": "http://mybible.infoo.pro/registry.zip",
	"mph4.ru.registry":           "http://mph4.ru/registry.zip",
	"dropbox.registry":           "https://dl.dropbox.com/s/keg0ptkkalux5fi/registry.zip",
	"mph4_test.registry":         "http://mph4.ru/registry_test.zip",
	"myb.1gb.ru_test.registry":   "http://myb.1gb.ru/registry_test.zip",
	"mybible.zone_test.registry": "https://mybible.zone/repository/registry/registry_test.zip",
}

// WriteDefaults writes the default descriptors into dir. Existing files are
// kept unless force is set. Descriptors not named in [Defaults], including
// every .extra file, are never touched. It returns the files written.
func WriteDefaults(dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "create sources dir")
	}

	names := make([]string, 0, len(Defaults))
	for name := range Defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if !force {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := os.WriteFile(path, []byte(Defaults[name]), 0o644); err != nil {
			return written, errs.Wrap(errs.ErrCodeConfig, err, "write %s", name)
		}
		written = append(written, path)
	}
	return written, nil
}

// Init writes the defaults when dir holds no descriptors yet.
func Init(dir string) error {
	paths, err := Discover(dir)
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		return nil
	}
	_, err = WriteDefaults(dir, false)
	return err
}
