// Package fetch retrieves registry payloads with ETag-based conditional
// requests.
//
// A [Fetcher] pairs a [Transport] with two persistence layers: the payload
// cache holding the last successfully fetched bytes of each registry, and
// the state store holding the matching ETag. The ETag is only sent when
// both exist, so a "not modified" answer can always be served from disk.
//
// Fetch never fails for a single source; the outcome is reported in the
// returned [Result]. [Fetcher.FetchAll] runs fetches with bounded
// parallelism and returns one Result per source, in source order.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/mybget/pkg/cache"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/source"
	"github.com/matzehuels/mybget/pkg/state"
)

// DefaultTimeout bounds a single registry fetch.
const DefaultTimeout = 20 * time.Second

// Kind classifies a fetch outcome.
type Kind int

const (
	Failed Kind = iota
	Unchanged
	Fresh
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Fresh:
		return "fresh"
	default:
		return "failed"
	}
}

// Result is the outcome of fetching one source.
type Result struct {
	Source source.Source
	Kind   Kind
	// Body holds the payload for Fresh results and the cached payload for
	// Unchanged results.
	Body []byte
	ETag string
	// Err is a SOURCE_UNREACHABLE or CONFIG_ERROR for Failed results.
	Err error
}

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds each fetch. Defaults to DefaultTimeout.
	Timeout time.Duration
	Logger  *log.Logger
}

// Fetcher performs conditional registry fetches.
type Fetcher struct {
	transport Transport
	payloads  cache.Cache
	state     state.Store
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// New creates a Fetcher. Payloads are cached in payloads under the
// registry URL; ETags are persisted in st.
func New(t Transport, payloads cache.Cache, st state.Store, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if payloads == nil {
		payloads = cache.NewNullCache()
	}
	return &Fetcher{
		transport: t,
		payloads:  payloads,
		state:     st,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Fetch retrieves the registry of src.
//
// On 304 the cached payload is returned as Unchanged and nothing is written.
// On 200 the payload and its ETag are persisted and Fresh is returned. Any
// other outcome is Failed and leaves the stored ETag and payload intact.
func (f *Fetcher) Fetch(ctx context.Context, src source.Source) Result {
	res := Result{Source: src, Kind: Failed}
	if !src.Usable() {
		res.Err = src.LoadErr
		if res.Err == nil {
			res.Err = errs.New(errs.ErrCodeConfig, "source %s has no URL", src.ID)
		}
		return res
	}

	cached, hasCached, err := f.payloads.Get(ctx, src.URL)
	if err != nil {
		f.logger.Warn("read cached registry", "source", src.ID, "err", err)
		hasCached = false
	}
	etag := ""
	if hasCached {
		etag, err = f.storedETag(ctx, src.URL)
		if err != nil {
			f.logger.Warn("read etag", "source", src.ID, "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := f.now()
	resp, err := f.transport.Get(ctx, src.URL, etag)
	if err != nil {
		res.Err = errs.Wrap(errs.ErrCodeSourceUnreachable, err, "fetch %s", src.ID)
		f.logger.Debug("fetch failed", "source", src.ID, "err", err)
		return res
	}

	switch resp.Status {
	case http.StatusNotModified:
		if !hasCached {
			res.Err = errs.New(errs.ErrCodeSourceUnreachable, "fetch %s: not modified without a cached payload", src.ID)
			return res
		}
		res.Kind, res.Body, res.ETag = Unchanged, cached, etag
	case http.StatusOK:
		res.Kind, res.Body, res.ETag = Fresh, resp.Body, resp.ETag
		f.persist(ctx, src, resp)
	default:
		res.Err = errs.New(errs.ErrCodeSourceUnreachable, "fetch %s: unexpected status %d", src.ID, resp.Status)
		return res
	}

	f.logger.Debug("fetched", "source", src.ID, "result", res.Kind, "bytes", len(res.Body), "took", f.now().Sub(start))
	return res
}

// persist stores the payload first and the ETag second. A payload that
// could not be stored leaves no ETag behind, so the next fetch is
// unconditional.
func (f *Fetcher) persist(ctx context.Context, src source.Source, resp *Response) {
	ctx = context.WithoutCancel(ctx)
	if err := f.payloads.Set(ctx, src.URL, resp.Body, cache.TTLRegistry); err != nil {
		f.logger.Warn("cache registry payload", "source", src.ID, "err", err)
		_ = f.state.Delete(ctx, source.ETagKey(src.URL))
		return
	}
	var err error
	if resp.ETag != "" {
		err = f.state.Set(ctx, source.ETagKey(src.URL), []byte(resp.ETag))
	} else {
		err = f.state.Delete(ctx, source.ETagKey(src.URL))
	}
	if err != nil {
		f.logger.Warn("store etag", "source", src.ID, "err", err)
	}
}

func (f *Fetcher) storedETag(ctx context.Context, url string) (string, error) {
	data, ok, err := f.state.Get(ctx, source.ETagKey(url))
	if err != nil || !ok {
		return "", err
	}
	return string(data), nil
}

// FetchAll fetches every source with at most limit requests in flight and
// returns the results in source order once all attempts have finished.
func (f *Fetcher) FetchAll(ctx context.Context, sources []source.Source, limit int) []Result {
	results := make([]Result, len(sources))
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, src := range sources {
		g.Go(func() error {
			results[i] = f.Fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Invalidate drops the stored ETag and cached payload of src, forcing the
// next fetch to be unconditional.
func (f *Fetcher) Invalidate(ctx context.Context, src source.Source) error {
	if err := f.payloads.Delete(ctx, src.URL); err != nil {
		return fmt.Errorf("invalidate %s: %w", src.ID, err)
	}
	if err := f.state.Delete(ctx, source.ETagKey(src.URL)); err != nil {
		return fmt.Errorf("invalidate %s: %w", src.ID, err)
	}
	return nil
}
