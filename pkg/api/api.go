// Package api serves the catalog over HTTP as read-only JSON.
//
//	GET /health
//	GET /modules?name=&desc=&lang=&type=&q=
//	GET /modules/{name}
//	GET /modules/{name}/versions
//	GET /installed
//
// Errors are returned as {"error": {"code": ..., "message": ...}} with
// NOT_FOUND mapped to 404, AMBIGUOUS to 409 and INVALID_INPUT to 400.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/manager"
	"github.com/matzehuels/mybget/pkg/store"
)

// Catalog is the read side of [manager.Manager].
type Catalog interface {
	Search(ctx context.Context, q store.Query) ([]manager.Module, error)
	Info(ctx context.Context, name string) (*manager.Module, error)
	ListVersions(ctx context.Context, name string) (*manager.VersionList, error)
	Installed(ctx context.Context) ([]install.Record, error)
}

// NewRouter returns the API handler for c.
func NewRouter(c Catalog, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &handler{catalog: c, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)
	r.Route("/modules", func(r chi.Router) {
		r.Get("/", h.search)
		r.Get("/{name}", h.info)
		r.Get("/{name}/versions", h.versions)
	})
	r.Get("/installed", h.installed)
	return r
}

type handler struct {
	catalog Catalog
	logger  *log.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := store.Query{
		Name:        v.Get("name"),
		Description: v.Get("desc"),
		Language:    v.Get("lang"),
		ModuleType:  v.Get("type"),
		Text:        v.Get("q"),
	}
	mods, err := h.catalog.Search(r.Context(), q)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if mods == nil {
		mods = []manager.Module{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(mods), "modules": mods})
}

func (h *handler) info(w http.ResponseWriter, r *http.Request) {
	mod, err := h.catalog.Info(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

func (h *handler) versions(w http.ResponseWriter, r *http.Request) {
	vl, err := h.catalog.ListVersions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vl)
}

func (h *handler) installed(w http.ResponseWriter, r *http.Request) {
	recs, err := h.catalog.Installed(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if recs == nil {
		recs = []install.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(recs), "modules": recs})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()))
	})
}

// StatusCode maps an error code to an HTTP status.
func StatusCode(err error) int {
	switch errs.GetCode(err) {
	case errs.ErrCodeNotFound:
		return http.StatusNotFound
	case errs.ErrCodeAmbiguous:
		return http.StatusConflict
	case errs.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	code := errs.GetCode(err)
	if code == "" {
		code = errs.ErrCodeInternal
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": errs.UserMessage(err)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
