package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/mybget/pkg/catalog"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/manager"
	"github.com/matzehuels/mybget/pkg/store"
)

type fakeCatalog struct {
	lastQuery store.Query
	modules   map[string]*manager.Module
}

func (f *fakeCatalog) Search(ctx context.Context, q store.Query) ([]manager.Module, error) {
	f.lastQuery = q
	var out []manager.Module
	for _, m := range f.modules {
		if q.Text == "" || strings.Contains(strings.ToLower(m.Description()), strings.ToLower(q.Text)) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Info(ctx context.Context, name string) (*manager.Module, error) {
	switch strings.ToLower(name) {
	case "rst":
		return nil, errs.New(errs.ErrCodeAmbiguous, "module name %q is ambiguous: RST, rst", name)
	case "broken":
		return nil, errs.New(errs.ErrCodeInternal, "database is locked")
	}
	for id, m := range f.modules {
		if strings.EqualFold(id, name) {
			return m, nil
		}
	}
	return nil, errs.New(errs.ErrCodeNotFound, "module %q not found", name)
}

func (f *fakeCatalog) ListVersions(ctx context.Context, name string) (*manager.VersionList, error) {
	m, err := f.Info(ctx, name)
	if err != nil {
		return nil, err
	}
	return &manager.VersionList{ModuleID: m.ID, Versions: m.Entry.Versions()}, nil
}

func (f *fakeCatalog) Installed(ctx context.Context) ([]install.Record, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeCatalog) {
	t.Helper()
	kjv := &catalog.Entry{
		ModuleID:       "KJV",
		Description:    "King James",
		LatestVersion:  "2020-01-15",
		LatestSourceID: "a",
		VersionsBySource: map[string][]catalog.VersionRef{
			"a": {{Version: "2020-01-15", SourceID: "a"}, {Version: "2019-01-01", SourceID: "a"}},
		},
	}
	fc := &fakeCatalog{modules: map[string]*manager.Module{
		"KJV": {ID: "KJV", Entry: kjv, Status: install.Status{ModuleID: "KJV", State: "not-installed"}},
	}}
	srv := httptest.NewServer(NewRouter(fc, log.New(io.Discard)))
	t.Cleanup(srv.Close)
	return srv, fc
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestRoutes(t *testing.T) {
	srv, fc := newTestServer(t)

	var health map[string]string
	if code := get(t, srv.URL+"/health", &health); code != 200 || health["status"] != "ok" {
		t.Errorf("health = %d %v", code, health)
	}

	var list struct {
		Count   int              `json:"count"`
		Modules []manager.Module `json:"modules"`
	}
	if code := get(t, srv.URL+"/modules?q=king&lang=en&type=bible&name=k&desc=james", &list); code != 200 || list.Count != 1 {
		t.Errorf("search = %d %+v", code, list)
	}
	want := store.Query{Name: "k", Description: "james", Language: "en", ModuleType: "bible", Text: "king"}
	if fc.lastQuery != want {
		t.Errorf("query = %+v, want %+v", fc.lastQuery, want)
	}

	get(t, srv.URL+"/modules?q=nothing", &list)
	if list.Count != 0 || list.Modules == nil {
		t.Errorf("empty search = %+v", list)
	}

	var mod manager.Module
	if code := get(t, srv.URL+"/modules/kjv", &mod); code != 200 || mod.Entry.ModuleID != "KJV" {
		t.Errorf("info = %d %+v", code, mod)
	}

	var vl manager.VersionList
	if code := get(t, srv.URL+"/modules/KJV/versions", &vl); code != 200 || len(vl.Versions) != 2 || vl.Versions[0].Version != "2020-01-15" {
		t.Errorf("versions = %d %+v", code, vl)
	}

	var installed struct {
		Count int `json:"count"`
	}
	if code := get(t, srv.URL+"/installed", &installed); code != 200 || installed.Count != 0 {
		t.Errorf("installed = %d %+v", code, installed)
	}
}

func TestErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		code int
		err  errs.Code
	}{
		{"/modules/NIV", http.StatusNotFound, errs.ErrCodeNotFound},
		{"/modules/rst", http.StatusConflict, errs.ErrCodeAmbiguous},
		{"/modules/rst/versions", http.StatusConflict, errs.ErrCodeAmbiguous},
		{"/modules/broken", http.StatusInternalServerError, errs.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body struct {
				Error struct {
					Code    errs.Code `json:"code"`
					Message string    `json:"message"`
				} `json:"error"`
			}
			if code := get(t, srv.URL+tt.path, &body); code != tt.code {
				t.Errorf("status = %d, want %d", code, tt.code)
			}
			if body.Error.Code != tt.err || body.Error.Message == "" {
				t.Errorf("error body = %+v", body.Error)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrCodeNotFound, "x"), 404},
		{errs.New(errs.ErrCodeAmbiguous, "x"), 409},
		{errs.New(errs.ErrCodeInvalidInput, "x"), 400},
		{errs.New(errs.ErrCodeConfig, "x"), 500},
		{io.EOF, 500},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
