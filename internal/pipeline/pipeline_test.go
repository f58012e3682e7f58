package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapetech/iptvconstructor/internal/config"
	"github.com/snapetech/iptvconstructor/internal/epglink"
	"github.com/snapetech/iptvconstructor/internal/guide"
	"github.com/snapetech/iptvconstructor/internal/m3u"
	"github.com/snapetech/iptvconstructor/internal/probe"
)

const playlist = `#EXTM3U
#EXTINF:-1 tvg-logo="http://l/abc.png" group-title="News",ABC NEWS HD
http://s/abc
#EXTINF:-1 group-title="News",BBC World
http://s/bbc
#EXTINF:-1 group-title="Germany VIP",Das Erste
http://s/de
#EXTINF:-1 group-title="Movies",Dead Film
http://s/dead
#EXTINF:-1 broken line without url
`

type staticSource struct{ t *epglink.Table }

func (s staticSource) Table(context.Context) (*epglink.Table, error) { return s.t, nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "stream.m3u")
	if err := os.WriteFile(in, []byte(playlist), 0o644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		Input:              in,
		Output:             filepath.Join(dir, "stream-formatted.m3u"),
		RequiredAttributes: []string{"tvg-id", "tvg-logo"},
		ExemptCategories:   []string{"German"},
		CategoryRenames:    map[string]string{"Germany VIP": "German"},
		DropDead:           true,
		RelocatedCategory:  "stopped working",
		ProbeConcurrency:   4,
	}
}

func deadChecker(dead ...string) probe.Reacher {
	return probe.Func(func(_ context.Context, u string) bool {
		for _, d := range dead {
			if u == d {
				return false
			}
		}
		return true
	})
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	b.Source = staticSource{epglink.TableOf("ABC News", "abc.news", "BBC World", "bbc.world")}
	b.Checker = deadChecker("http://s/dead", "http://s/de")

	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" || res.Parsed != 4 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Stats.Kept != 3 || res.Stats.Dropped != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Match == nil || res.Match.Applied != 4 {
		t.Errorf("match = %+v", res.Match)
	}

	data, err := os.ReadFile(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`#EXTINF:-1 tvg-id="abc.news" tvg-logo="http://l/abc.png" group-title="News",ABC NEWS HD`,
		`#EXTINF:-1 tvg-id="bbc.world" group-title="News",BBC World`,
		"#German (begin)",
		"http://s/de",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Dead Film") {
		t.Error("dead entry should be dropped")
	}
}

func TestBuild_emptyTableFails(t *testing.T) {
	cfg := testConfig(t)
	b, _ := New(cfg)
	b.Source = staticSource{epglink.NewTable()}
	_, err := b.Build(context.Background())
	if !errors.Is(err, epglink.ErrEmptyTable) {
		t.Errorf("err = %v, want ErrEmptyTable", err)
	}
	if _, statErr := os.Stat(cfg.Output); !os.IsNotExist(statErr) {
		t.Error("no output should be written when matching fails")
	}
}

func TestBuild_missingInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input = filepath.Join(t.TempDir(), "none.m3u")
	b, _ := New(cfg)
	if _, err := b.Build(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestBuild_overlongLineFails(t *testing.T) {
	cfg := testConfig(t)
	long := playlist + "#EXTINF:-1,Long\nhttp://s/" + strings.Repeat("x", 2<<20) + "\n"
	if err := os.WriteFile(cfg.Input, []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}
	b, _ := New(cfg)
	if _, err := b.Build(context.Background()); !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("err = %v, want bufio.ErrTooLong", err)
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Errorf("output written for a truncated playlist: %v", err)
	}
}

func TestSplitParseErrors(t *testing.T) {
	_, perr := m3u.ParseStrict("http://stray\n#EXTINF:-1,A\nhttp://a\n#EXTINF:-1,Dangling\n")
	n, err := splitParseErrors(perr)
	if n != 2 || err != nil {
		t.Errorf("splitParseErrors = %d, %v; want 2, nil", n, err)
	}
	if n, err := splitParseErrors(nil); n != 0 || err != nil {
		t.Errorf("nil: %d, %v", n, err)
	}
}

func TestBuild_inputURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(playlist))
	}))
	defer srv.Close()
	cfg := testConfig(t)
	cfg.Input = srv.URL + "/get.php"
	b, _ := New(cfg)
	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Kept != 4 {
		t.Errorf("kept = %d, want 4 with checking off", res.Stats.Kept)
	}
}

func TestFix(t *testing.T) {
	cfg := testConfig(t)
	b, _ := New(cfg)
	b.Checker = deadChecker("http://s/bbc")
	res, err := b.Fix(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Kept != 3 || res.Stats.Dropped != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	got, err := m3u.ParseFile(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	if strings.Join(names, "|") != "ABC NEWS HD|Das Erste|Dead Film" {
		t.Errorf("order = %v", names)
	}
}

func TestSaveTable(t *testing.T) {
	cfg := testConfig(t)
	b, _ := New(cfg)
	if _, err := b.SaveTable(context.Background(), "x.json"); err == nil {
		t.Error("want error without source")
	}
	b.Source = staticSource{epglink.TableOf("A", "a", "B", "b")}
	path := filepath.Join(t.TempDir(), "epg.json")
	n, err := b.SaveTable(context.Background(), path)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	tbl, err := (&guide.Snapshot{Path: path}).Table(context.Background())
	if err != nil || tbl.Len() != 2 {
		t.Errorf("snapshot len=%d err=%v", tbl.Len(), err)
	}
}

func TestNewSource(t *testing.T) {
	cases := []struct {
		source, snapshot string
		want             string
	}{
		{"html", "", "*guide.HTMLCatalog"},
		{"xmltv", "", "*guide.XMLTV"},
		{"iptvorg", "", "*guide.IPTVOrg"},
		{"html", "epg.json", "*guide.Cached"},
		{"snapshot", "epg.json", "*guide.Snapshot"},
	}
	for _, tc := range cases {
		src, err := NewSource(&config.Config{EPGSource: tc.source, EPGSnapshot: tc.snapshot}, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.source, err)
		}
		if got := typeName(src); got != tc.want {
			t.Errorf("%s/%s: %s, want %s", tc.source, tc.snapshot, got, tc.want)
		}
	}
	if _, err := NewSource(&config.Config{EPGSource: "ftp"}, nil); err == nil {
		t.Error("want error for unknown source")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *guide.HTMLCatalog:
		return "*guide.HTMLCatalog"
	case *guide.IPTVOrg:
		return "*guide.IPTVOrg"
	case *guide.XMLTV:
		return "*guide.XMLTV"
	case *guide.Cached:
		return "*guide.Cached"
	case *guide.Snapshot:
		return "*guide.Snapshot"
	}
	return "?"
}

func TestNewChecker(t *testing.T) {
	cfg := &config.Config{ProbeTimeout: 0, ProbePerHost: 2, ProbeRate: 0.5}
	c, err := NewChecker(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Hosts == nil || c.Limiter == nil || c.Limiter.Burst() != 1 {
		t.Errorf("checker = %+v", c)
	}
	if _, err := NewChecker(&config.Config{Proxy: "gopher://x"}, nil); err == nil {
		t.Error("want error for bad proxy")
	}
}

func TestServer(t *testing.T) {
	cfg := testConfig(t)
	b, _ := New(cfg)
	s := &Server{Builder: b}
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/playlist.m3u", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before build: status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "loading") {
		t.Errorf("healthz before build: %d %s", rec.Code, rec.Body)
	}

	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/playlist.m3u", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "#EXTM3U") {
		t.Errorf("playlist: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" || health["channels"] != float64(4) {
		t.Errorf("healthz = %v", health)
	}

	// A failed rebuild keeps the last good playlist.
	os.Remove(cfg.Input)
	if err := s.Rebuild(context.Background()); err == nil {
		t.Fatal("want rebuild error")
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/playlist.m3u", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("after failed rebuild: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "iptv_constructor_builds_total") {
		t.Error("metrics missing builds_total")
	}
}
