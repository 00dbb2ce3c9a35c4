package manager

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/mybget/pkg/cache"
	"github.com/matzehuels/mybget/pkg/config"
	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/fetch"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/source"
	"github.com/matzehuels/mybget/pkg/store"
)

const (
	urlA = "https://a.example/registry.zip"
	urlB = "https://b.example/extra.json"
	urlC = "https://c.example/extra.json"
)

// fakeRemote serves registries with hash ETags and module archives.
type fakeRemote struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	files   map[string][]byte
	failing map[string]bool
	etags   map[string][]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		bodies:  make(map[string][]byte),
		files:   make(map[string][]byte),
		failing: make(map[string]bool),
		etags:   make(map[string][]string),
	}
}

func (f *fakeRemote) Get(ctx context.Context, url, etag string) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.etags[url] = append(f.etags[url], etag)
	if f.failing[url] {
		return nil, errors.New("connection refused")
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("status 404")
	}
	tag := `"` + cache.Hash(body)[:16] + `"`
	if etag == tag {
		return &fetch.Response{Status: 304, ETag: tag}, nil
	}
	return &fetch.Response{Status: 200, ETag: tag, Body: body}, nil
}

func (f *fakeRemote) Download(ctx context.Context, url, dst string) (int64, error) {
	f.mu.Lock()
	data, ok := f.files[url]
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("status 404")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	return int64(len(data)), os.WriteFile(dst, data, 0o644)
}

func (f *fakeRemote) set(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeRemote) fail(url string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[url] = v
}

func (f *fakeRemote) lastETag(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent := f.etags[url]
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

type download map[string]any

func coreRegistry(t *testing.T, downloads ...download) []byte {
	t.Helper()
	doc, err := json.Marshal(map[string]any{
		"hosts":     []map[string]string{{"alias": "dl", "path": "https://dl.example/%s"}},
		"downloads": downloads,
	})
	if err != nil {
		t.Fatal(err)
	}
	return zipBytes(t, map[string]string{"registry.json": string(doc)})
}

func extraRegistry(t *testing.T, modules ...map[string]string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{"modules": modules})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func zipBytes(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fixture struct {
	m      *Manager
	remote *fakeRemote
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(filepath.Join(dir, "config"))
	cfg.ModulePath = filepath.Join(dir, "modules")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	for name, url := range map[string]string{"a.registry": urlA, "b.extra": urlB, "c.extra": urlC} {
		if err := os.WriteFile(filepath.Join(cfg.SourcesDir(), name), []byte(url+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	remote := newFakeRemote()
	remote.set(urlA, coreRegistry(t,
		download{"abr": "KJV", "des": "King James", "upd": "2020-01-15", "lng": "en", "url": []string{"{dl}KJV.zip"}},
		download{"abr": "KJV", "des": "King James", "upd": "2019-01-01", "lng": "en", "url": []string{"{dl}KJV_2019.zip"}},
		download{"abr": "RST", "des": "Synodal", "upd": "2021-06-01", "lng": "ru", "url": []string{"{dl}RST.zip"}},
	))
	remote.set(urlB, extraRegistry(t, map[string]string{
		"file_name": "TSK.zip", "download_url": "https://dl.example/TSK.commentaries.zip",
		"description": "Treasury of Scripture Knowledge", "update_date": "2018-01-01", "language_code": "en",
	}))
	remote.set(urlC, extraRegistry(t, map[string]string{
		"file_name": "MHC.zip", "download_url": "https://dl.example/MHC.commentaries.zip",
		"description": "Matthew Henry", "update_date": "2020-02-02", "language_code": "en",
	}))
	remote.files["https://dl.example/KJV.zip"] = zipBytes(t, map[string]string{"kjv.SQLite3": "kjv 2020"})
	remote.files["https://dl.example/KJV_2019.zip"] = zipBytes(t, map[string]string{"kjv_old.SQLite3": "kjv 2019"})
	remote.files["https://dl.example/RST.zip"] = zipBytes(t, map[string]string{"rst.SQLite3": "rst", ".ini": "x"})
	remote.files["https://dl.example/TSK.commentaries.zip"] = zipBytes(t, map[string]string{"tsk.commentaries.SQLite3": "tsk"})

	m, err := New(context.Background(), Options{
		Config:     cfg,
		Transport:  remote,
		Downloader: remote,
		Logger:     log.New(io.Discard),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return &fixture{m: m, remote: remote, cfg: cfg}
}

func (f *fixture) update(t *testing.T) *UpdateReport {
	t.Helper()
	report, err := f.m.Update(context.Background())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return report
}

func (f *fixture) catalogBytes(t *testing.T) []byte {
	t.Helper()
	cat, err := f.m.store.Catalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, err := cat.MarshalCanonical()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func outcomes(r *UpdateReport) map[string]Outcome {
	out := make(map[string]Outcome)
	for _, s := range r.Sources {
		out[s.Source.ID] = s.Outcome
	}
	return out
}

func TestUpdateIdempotent(t *testing.T) {
	f := newFixture(t)

	first := f.update(t)
	if first.Fresh() != 3 || first.Modules != 4 || !first.Changed {
		t.Fatalf("first update = %+v", first)
	}
	before := f.catalogBytes(t)

	second := f.update(t)
	if second.Fresh() != 0 {
		t.Errorf("second update fetched %d fresh payloads, want 0", second.Fresh())
	}
	for id, o := range outcomes(second) {
		if o != OutcomeUnchanged {
			t.Errorf("%s = %s, want unchanged", id, o)
		}
	}
	if second.Changed || second.Hash != first.Hash {
		t.Errorf("catalog hash changed: %s -> %s", first.Hash, second.Hash)
	}
	if !bytes.Equal(before, f.catalogBytes(t)) {
		t.Error("catalog not byte-identical after second update")
	}
	if second.RunID == first.RunID {
		t.Error("run id reused")
	}
}

func TestUpdateCachesPayloadsUnderPrefix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	data, ok, err := f.m.payloads.Get(ctx, registryKeyPrefix+urlB)
	if err != nil || !ok {
		t.Fatalf("payload for %s: ok=%v err=%v", urlB, ok, err)
	}
	if !bytes.Equal(data, f.remote.bodies[urlB]) {
		t.Error("cached payload differs from served registry")
	}
	if _, ok, _ := f.m.payloads.Get(ctx, urlB); ok {
		t.Error("payload stored under unscoped key")
	}
}

func TestUpdatePartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	f.remote.set(urlA, coreRegistry(t,
		download{"abr": "KJV", "des": "King James", "upd": "2022-03-03", "lng": "en", "url": []string{"{dl}KJV.zip"}},
	))
	f.remote.set(urlC, extraRegistry(t, map[string]string{
		"file_name": "MHC.zip", "download_url": "https://dl.example/MHC.commentaries.zip",
		"description": "Matthew Henry, revised", "update_date": "2023-01-01", "language_code": "en",
	}))
	f.remote.fail(urlB, true)

	report := f.update(t)
	got := outcomes(report)
	if got["a.registry"] != OutcomeFresh || got["b.extra"] != OutcomeStale || got["c.extra"] != OutcomeFresh {
		t.Errorf("outcomes = %v", got)
	}
	if len(report.Warnings) != 1 || !errs.Is(report.Warnings[0], errs.ErrCodeSourceUnreachable) {
		t.Errorf("warnings = %v", report.Warnings)
	}

	for name, want := range map[string]string{"KJV": "2022-03-03", "MHC": "2023-01-01", "TSK": "2018-01-01"} {
		info, err := f.m.Info(ctx, name)
		if err != nil {
			t.Fatalf("Info(%s): %v", name, err)
		}
		if info.Entry.LatestVersion != want {
			t.Errorf("%s latest = %s, want %s", name, info.Entry.LatestVersion, want)
		}
	}
	if _, err := f.m.Info(ctx, "RST"); !errs.Is(err, errs.ErrCodeNotFound) {
		t.Errorf("RST dropped by source A, Info err = %v", err)
	}

	sources, _, err := f.m.Sources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sources {
		want := source.StatusOK
		if s.ID == "b.extra" {
			want = source.StatusStale
		}
		if s.Status != want {
			t.Errorf("%s status = %s, want %s", s.ID, s.Status, want)
		}
	}

	// B recovers.
	f.remote.fail(urlB, false)
	report = f.update(t)
	if outcomes(report)["b.extra"] != OutcomeUnchanged {
		t.Errorf("recovered source outcome = %s", outcomes(report)["b.extra"])
	}
}

func TestUpdateMalformedRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	f.remote.set(urlB, []byte(`{"modules": [`))
	report := f.update(t)
	if outcomes(report)["b.extra"] != OutcomeStale {
		t.Fatalf("outcome = %s, want stale", outcomes(report)["b.extra"])
	}
	if !errs.Is(report.Warnings[0], errs.ErrCodeMalformedRegistry) {
		t.Errorf("warning = %v", report.Warnings[0])
	}
	if _, err := f.m.Info(ctx, "TSK"); err != nil {
		t.Errorf("TSK not retained: %v", err)
	}

	f.update(t)
	if tag := f.remote.lastETag(urlB); tag != "" {
		t.Errorf("malformed payload revalidated with etag %s", tag)
	}
}

func TestUpdateUnreachableWithoutHistory(t *testing.T) {
	f := newFixture(t)
	f.remote.fail(urlC, true)
	report := f.update(t)
	if outcomes(report)["c.extra"] != OutcomeUnreachable {
		t.Errorf("outcome = %s", outcomes(report)["c.extra"])
	}
	if report.Modules != 3 {
		t.Errorf("modules = %d", report.Modules)
	}
}

func TestUpdateWritesDefaultSources(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	remote := newFakeRemote()
	m, err := New(context.Background(), Options{Config: cfg, Transport: remote, Downloader: remote, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	report, err := m.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Sources) != len(source.Defaults) {
		t.Errorf("sources = %d, want %d", len(report.Sources), len(source.Defaults))
	}
}

func TestInstallRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	res, err := f.m.Install(ctx, []string{"kjv"}, InstallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 1 || res.Err() != nil {
		t.Fatalf("install = %+v", res)
	}
	if got := res.Succeeded[0]; got.ModuleID != "KJV" || got.Version != "2020-01-15" || fmt.Sprint(got.Files) != "[KJV.SQLite3]" {
		t.Errorf("installed %+v", got)
	}
	data, err := os.ReadFile(filepath.Join(f.cfg.ModulePath, "KJV.SQLite3"))
	if err != nil || string(data) != "kjv 2020" {
		t.Errorf("module file = %q, %v", data, err)
	}

	lower, _ := f.m.Info(ctx, "kjv")
	upper, _ := f.m.Info(ctx, "KJV")
	if lower.Entry.ModuleID != upper.Entry.ModuleID || lower.Status.Kind != install.Installed {
		t.Errorf("Info(kjv) = %+v, Info(KJV) = %+v", lower, upper)
	}

	res, err = f.m.Remove(ctx, []string{"KJV"})
	if err != nil || len(res.Succeeded) != 1 {
		t.Fatalf("remove = %+v, %v", res, err)
	}
	recs, _ := f.m.Installed(ctx)
	if len(recs) != 0 {
		t.Errorf("records left: %+v", recs)
	}
	status, _ := f.m.Status(ctx)
	if st := status["KJV"]; st.Kind != install.NotInstalled || len(st.Files) != 0 {
		t.Errorf("KJV after removal = %+v", st)
	}
}

func TestInstallBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	res, err := f.m.Install(ctx, []string{"KJV,RST", "'Missing'"}, InstallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 2 || len(res.Failed) != 1 {
		t.Fatalf("batch = %+v", res)
	}
	if res.Failed[0].Name != "Missing" || !errs.Is(res.Failed[0].Err, errs.ErrCodeNotFound) {
		t.Errorf("failure = %+v", res.Failed[0])
	}
	if res.Err() == nil {
		t.Error("Err() = nil with failures")
	}
	if _, err := os.Stat(filepath.Join(f.cfg.ModulePath, "RST.ini")); err != nil {
		t.Errorf("dot-file not prefixed: %v", err)
	}

	again, _ := f.m.Install(ctx, []string{"KJV"}, InstallOptions{})
	if len(again.Skipped) != 1 || !errs.Is(again.Skipped[0].Err, errs.ErrCodeAlreadyInstalled) {
		t.Errorf("second install = %+v", again)
	}

	re, _ := f.m.Install(ctx, []string{"KJV"}, InstallOptions{Reinstall: true})
	if len(re.Succeeded) != 1 {
		t.Errorf("reinstall = %+v", re)
	}
}

func TestInstallValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.m.Install(ctx, []string{"KJV"}, InstallOptions{}); !errs.Is(err, errs.ErrCodeNotFound) {
		t.Errorf("install before update err = %v", err)
	}
	f.update(t)
	if _, err := f.m.Install(ctx, []string{"KJV", "RST"}, InstallOptions{Version: "2019-01-01"}); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("version with two modules err = %v", err)
	}
	res, _ := f.m.Install(ctx, []string{"KJV"}, InstallOptions{Version: "1999-01-01"})
	if len(res.Failed) != 1 || !errs.Is(res.Failed[0].Err, errs.ErrCodeNotFound) {
		t.Errorf("unknown version = %+v", res)
	}

	f.cfg.ModulePath = ""
	if _, err := f.m.Install(ctx, []string{"KJV"}, InstallOptions{}); !errs.Is(err, errs.ErrCodeConfig) {
		t.Errorf("install without module path err = %v", err)
	}
}

func TestInstallExtractionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)
	f.remote.files["https://dl.example/RST.zip"] = []byte("not a zip")

	res, err := f.m.Install(ctx, []string{"RST"}, InstallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || !errs.Is(res.Failed[0].Err, errs.ErrCodeExtractionFailed) {
		t.Fatalf("result = %+v", res)
	}
	if _, ok, _ := f.m.tracker.Record(ctx, "RST"); ok {
		t.Error("install record written for failed extraction")
	}
	if _, err := os.Stat(filepath.Join(f.cfg.DownloadCacheDir(), "RST.zip")); !os.IsNotExist(err) {
		t.Errorf("broken archive kept in download cache: %v", err)
	}
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	if _, err := f.m.Install(ctx, []string{"KJV"}, InstallOptions{Version: "2019-01-01"}); err != nil {
		t.Fatal(err)
	}
	f.m.Install(ctx, []string{"RST"}, InstallOptions{})

	up, err := f.m.List(ctx, ListOptions{Upgradable: true})
	if err != nil || len(up) != 1 || up[0].ID != "KJV" {
		t.Fatalf("upgradable = %+v, %v", up, err)
	}

	res, err := f.m.Upgrade(ctx, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0].Version != "2020-01-15" {
		t.Fatalf("upgrade = %+v", res)
	}
	data, _ := os.ReadFile(filepath.Join(f.cfg.ModulePath, "KJV.SQLite3"))
	if string(data) != "kjv 2020" {
		t.Errorf("module file after upgrade = %q", data)
	}

	res, _ = f.m.Upgrade(ctx, []string{"KJV", "RST", "TSK"}, false)
	if len(res.Skipped) != 2 || len(res.Failed) != 1 {
		t.Errorf("second upgrade = %+v", res)
	}
	for _, it := range res.Skipped {
		if !errs.Is(it.Err, errs.ErrCodeAlreadyInstalled) {
			t.Errorf("skipped %s err = %v", it.Name, it.Err)
		}
	}
	if _, err := f.m.Upgrade(ctx, nil, false); !errs.Is(err, errs.ErrCodeInvalidInput) {
		t.Errorf("upgrade without names err = %v", err)
	}
}

func TestUpgradeFailureKeepsInstall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	if _, err := f.m.Install(ctx, []string{"KJV"}, InstallOptions{Version: "2019-01-01"}); err != nil {
		t.Fatal(err)
	}
	delete(f.remote.files, "https://dl.example/KJV.zip")

	res, err := f.m.Upgrade(ctx, []string{"KJV"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || !errs.Is(res.Failed[0].Err, errs.ErrCodeSourceUnreachable) {
		t.Fatalf("upgrade = %+v", res)
	}
	rec, ok, err := f.m.tracker.Record(ctx, "KJV")
	if err != nil || !ok || rec.InstalledVersion != "2019-01-01" {
		t.Errorf("record after failed upgrade = %+v, %v, %v", rec, ok, err)
	}
	data, _ := os.ReadFile(filepath.Join(f.cfg.ModulePath, "KJV.SQLite3"))
	if string(data) != "kjv 2019" {
		t.Errorf("module file after failed upgrade = %q", data)
	}
}

func TestReinstallFailureKeepsInstall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	if _, err := f.m.Install(ctx, []string{"RST"}, InstallOptions{}); err != nil {
		t.Fatal(err)
	}
	cached := filepath.Join(f.cfg.DownloadCacheDir(), "RST.zip")
	if err := os.WriteFile(cached, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := f.m.Install(ctx, []string{"RST"}, InstallOptions{Reinstall: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || !errs.Is(res.Failed[0].Err, errs.ErrCodeExtractionFailed) {
		t.Fatalf("reinstall = %+v", res)
	}
	if _, ok, _ := f.m.tracker.Record(ctx, "RST"); !ok {
		t.Error("install record dropped by failed reinstall")
	}
	for _, name := range []string{"RST.SQLite3", "RST.ini"} {
		if _, err := os.Stat(filepath.Join(f.cfg.ModulePath, name)); err != nil {
			t.Errorf("%s after failed reinstall: %v", name, err)
		}
	}

	// The broken archive was dropped, so the next attempt downloads again.
	res, _ = f.m.Install(ctx, []string{"RST"}, InstallOptions{Reinstall: true})
	if len(res.Succeeded) != 1 {
		t.Errorf("second reinstall = %+v", res)
	}
}

func TestReinstallDropsStaleFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)

	if _, err := f.m.Install(ctx, []string{"RST"}, InstallOptions{}); err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(f.cfg.DownloadCacheDir(), "RST.zip"))
	f.remote.files["https://dl.example/RST.zip"] = zipBytes(t, map[string]string{"rst.SQLite3": "rst 2"})

	if res, _ := f.m.Install(ctx, []string{"RST"}, InstallOptions{Reinstall: true}); len(res.Succeeded) != 1 {
		t.Fatalf("reinstall = %+v", res)
	}
	rec, _, _ := f.m.tracker.Record(ctx, "RST")
	if fmt.Sprint(rec.Files) != "[RST.SQLite3]" {
		t.Errorf("files = %v", rec.Files)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.ModulePath, "RST.ini")); !os.IsNotExist(err) {
		t.Errorf("stale RST.ini kept: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(f.cfg.ModulePath, "RST.SQLite3"))
	if string(data) != "rst 2" {
		t.Errorf("RST.SQLite3 = %q", data)
	}
}

func TestInstallRefusesForeignFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)
	f.remote.files["https://dl.example/RST.zip"] = zipBytes(t, map[string]string{"rst.SQLite3": "rst", "readme.txt": "rst readme"})
	f.remote.files["https://dl.example/TSK.commentaries.zip"] = zipBytes(t, map[string]string{"tsk.commentaries.SQLite3": "tsk", "readme.txt": "tsk readme"})

	if res, _ := f.m.Install(ctx, []string{"RST"}, InstallOptions{}); len(res.Succeeded) != 1 {
		t.Fatalf("install RST = %+v", res)
	}
	res, err := f.m.Install(ctx, []string{"TSK"}, InstallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || !errs.Is(res.Failed[0].Err, errs.ErrCodeExtractionFailed) {
		t.Fatalf("install TSK = %+v", res)
	}
	data, _ := os.ReadFile(filepath.Join(f.cfg.ModulePath, "readme.txt"))
	if string(data) != "rst readme" {
		t.Errorf("readme.txt = %q", data)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.ModulePath, "TSK.commentaries.SQLite3")); !os.IsNotExist(err) {
		t.Errorf("TSK file placed despite conflict: %v", err)
	}
	if _, ok, _ := f.m.tracker.Record(ctx, "TSK"); ok {
		t.Error("install record written for conflicting install")
	}
}

func TestListAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)
	f.m.Install(ctx, []string{"TSK"}, InstallOptions{})
	os.WriteFile(filepath.Join(f.cfg.ModulePath, "Old.dictionary.SQLite3"), nil, 0o644)

	ids := func(mods []Module) string {
		var out []string
		for _, m := range mods {
			out = append(out, m.ID)
		}
		return fmt.Sprint(out)
	}

	tests := []struct {
		name string
		opts ListOptions
		want string
	}{
		{"default", ListOptions{}, "[KJV MHC RST TSK]"},
		{"installed", ListOptions{Installed: true}, "[Old TSK]"},
		{"language", ListOptions{Language: "RU"}, "[RST]"},
		{"type", ListOptions{ModuleType: "commentaries"}, "[MHC TSK]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.m.List(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if ids(got) != tt.want {
				t.Errorf("List = %s, want %s", ids(got), tt.want)
			}
		})
	}

	found, err := f.m.Search(ctx, store.Query{Text: "henry"})
	if err != nil || ids(found) != "[MHC]" {
		t.Errorf("Search = %s, %v", ids(found), err)
	}

	vl, err := f.m.ListVersions(ctx, "kjv")
	if err != nil {
		t.Fatal(err)
	}
	if len(vl.Versions) != 2 || vl.Versions[0].Version != "2020-01-15" || vl.Installed != "" {
		t.Errorf("versions = %+v", vl)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.update(t)
	f.m.Install(ctx, []string{"KJV"}, InstallOptions{})

	if err := f.m.Purge(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.Search(ctx, store.Query{}); !errs.Is(err, errs.ErrCodeNotFound) {
		t.Errorf("search after purge err = %v", err)
	}
	if recs, _ := f.m.Installed(ctx); len(recs) != 1 {
		t.Errorf("install records after partial purge = %d", len(recs))
	}
	if entries, _ := os.ReadDir(f.cfg.DownloadCacheDir()); len(entries) != 0 {
		t.Errorf("download cache not cleared: %d entries", len(entries))
	}

	report := f.update(t)
	if report.Fresh() != 3 {
		t.Errorf("fresh after purge = %d, want 3", report.Fresh())
	}
}

func TestPurgeFull(t *testing.T) {
	f := newFixture(t)
	f.update(t)
	if err := f.m.Purge(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.cfg.Dir()); !os.IsNotExist(err) {
		t.Errorf("config dir still present: %v", err)
	}
}

func TestSetInstallDir(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "new", "modules")
	got, err := f.m.SetInstallDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := config.Load(f.cfg.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ModulePath != got {
		t.Errorf("saved module path = %q, want %q", loaded.ModulePath, got)
	}
}

func TestParseNames(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"KJV"}, "[KJV]"},
		{[]string{"KJV,RST", "'NIV'"}, "[KJV RST NIV]"},
		{[]string{`"KJV, RST"`, "kjv"}, "[KJV RST]"},
		{[]string{" , "}, "[]"},
	}
	for _, tt := range tests {
		if got := fmt.Sprint(ParseNames(tt.args)); got != tt.want {
			t.Errorf("ParseNames(%q) = %s, want %s", tt.args, got, tt.want)
		}
	}
}

func TestArchiveName(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://dl.example/KJV.zip", "KJV.zip"},
		{"https://dl.example/%D0%A1%D0%A0%D0%9F.zip", "СРП.zip"},
		{"https://dl.example/get?file=x", "get.zip"},
		{"https://dl.example/TSK.commentaries", "TSK.commentaries.zip"},
	}
	for _, tt := range tests {
		if got := ArchiveName(tt.url); got != tt.want {
			t.Errorf("ArchiveName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
