// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register hooks
// at startup to receive events about catalog updates, module installs and
// registry HTTP calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetUpdateHooks(&myUpdateHooks{})
//	    observability.SetHTTPHooks(&myHTTPHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Update().OnUpdateStart(ctx, runID, len(sources))
//	// ... fetch, parse, merge ...
//	observability.Update().OnUpdateComplete(ctx, runID, modules, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Update Hooks
// =============================================================================

// UpdateHooks receives events from catalog updates.
type UpdateHooks interface {
	OnUpdateStart(ctx context.Context, runID string, sources int)
	// OnSourceDone reports the outcome of one source: "fresh", "unchanged",
	// or "stale".
	OnSourceDone(ctx context.Context, sourceID, outcome string, records int, err error)
	OnUpdateComplete(ctx context.Context, runID string, modules int, duration time.Duration, err error)
}

// =============================================================================
// Install Hooks
// =============================================================================

// InstallHooks receives events from module installs and removals.
type InstallHooks interface {
	// OnInstall records a finished install or upgrade attempt.
	OnInstall(ctx context.Context, moduleID, version string, files int, duration time.Duration, err error)

	// OnRemove records a finished removal attempt.
	OnRemove(ctx context.Context, moduleID string, files int, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopUpdateHooks is a no-op implementation of UpdateHooks.
type NoopUpdateHooks struct{}

func (NoopUpdateHooks) OnUpdateStart(context.Context, string, int)                          {}
func (NoopUpdateHooks) OnSourceDone(context.Context, string, string, int, error)            {}
func (NoopUpdateHooks) OnUpdateComplete(context.Context, string, int, time.Duration, error) {}

// NoopInstallHooks is a no-op implementation of InstallHooks.
type NoopInstallHooks struct{}

func (NoopInstallHooks) OnInstall(context.Context, string, string, int, time.Duration, error) {}
func (NoopInstallHooks) OnRemove(context.Context, string, int, error)                         {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	updateHooks  UpdateHooks  = NoopUpdateHooks{}
	installHooks InstallHooks = NoopInstallHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetUpdateHooks registers custom update hooks.
// This should be called once at application startup before any update runs.
func SetUpdateHooks(h UpdateHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		updateHooks = h
	}
}

// SetInstallHooks registers custom install hooks.
func SetInstallHooks(h InstallHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		installHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Update returns the registered update hooks.
func Update() UpdateHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return updateHooks
}

// Install returns the registered install hooks.
func Install() InstallHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return installHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	updateHooks = NoopUpdateHooks{}
	installHooks = NoopInstallHooks{}
	httpHooks = NoopHTTPHooks{}
}
