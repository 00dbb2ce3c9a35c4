// Package pkg provides the libraries behind mybget, a manager for MyBible
// modules published through several independent registries.
//
// # Overview
//
// mybget downloads every configured registry, merges the module records
// into one catalog, and installs modules into the MyBible directory while
// tracking what it placed there.
//
// # Architecture
//
// The data flow of an update:
//
//	source descriptors (.registry / .extra)
//	         ↓
//	    [source] package (discover, load, persisted status)
//	         ↓
//	    [fetch] package (conditional GET with ETags, payload cache)
//	         ↓
//	    [registry] package (parse core and extra schemas)
//	         ↓
//	    [catalog] package (merge by module ID, version precedence)
//	         ↓
//	    [store] package (SQLite catalog, atomic replace)
//
// And of an install:
//
//	[store] lookup → [fetch] download → [extract] → [install] record
//
// [manager] ties both flows together and is the single entry point used by
// the CLI and the [api] server.
//
// # Main Packages
//
// ## Domain
//
// [version] - Total order over MyBible version strings. Dates rank above
// free-form tags, which rank above malformed strings.
//
// [registry] - Parsers for the zipped core registry and the JSON extra
// registries. Malformed input yields MALFORMED_REGISTRY.
//
// [catalog] - The merged view of all sources and the rules that pick each
// field and the latest version.
//
// [install] - Install records, reconciliation of catalog, records and files
// on disk, and per-module locks.
//
// [extract] - Safe archive extraction into the install directory.
//
// ## Infrastructure
//
// [config] - Settings file (TOML) and directory layout.
//
// [state] - Key-value state for ETags, source status and install records,
// with file, Redis and memory backends.
//
// [cache] - File cache for registry payloads, plus retry helpers.
//
// [store] - SQLite-backed catalog with search.
//
// [observability] - Hooks for update, install and HTTP events.
//
// [errors] - Coded errors shared by every package.
//
// # Testing
//
//	go test ./...
//
// [api]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/api
// [cache]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/cache
// [catalog]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/catalog
// [config]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/errors
// [extract]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/extract
// [install]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/install
// [manager]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/manager
// [observability]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/observability
// [registry]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/registry
// [state]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/state
// [store]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/store
// [version]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/version
//
// [fetch]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/fetch
// [source]: https://pkg.go.dev/github.com/matzehuels/mybget/pkg/source
package pkg
