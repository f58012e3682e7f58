package guide

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/snapetech/iptvconstructor/internal/epglink"
)

const catalogPage = `<!doctype html>
<html><body>
<table class="channels">
<thead><tr><th>#</th><th>ID</th><th>Names</th></tr></thead>
<tbody>
<tr><td>1</td><td>abc-news</td><td><a href="/c/1">ABC News</a>, <a href="/c/1b"> ABC News HD </a></td></tr>
<tr></tr>
<tr><td>2</td><td>bbc-world</td><td><a href="/c/2">BBC World</a></td></tr>
<tr><td>3</td><td>short</td></tr>
<tr><td>4</td><td> </td><td><a>No Id</a></td></tr>
</tbody>
</table>
<table><tbody><tr><td>9</td><td>ignored</td><td><a>Second Table</a></td></tr></tbody></table>
</body></html>`

func tableEntries(t *epglink.Table) [][2]string {
	var out [][2]string
	t.Each(func(name, id string) { out = append(out, [2]string{name, id}) })
	return out
}

func TestParseCatalog(t *testing.T) {
	tbl, err := ParseCatalog([]byte(catalogPage))
	if err != nil {
		t.Fatal(err)
	}
	got := tableEntries(tbl)
	want := [][2]string{
		{"ABC News", "abc-news"},
		{"ABC News HD", "abc-news"},
		{"BBC World", "bbc-world"},
	}
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseCatalog_noTable(t *testing.T) {
	if _, err := ParseCatalog([]byte("<html><body><p>maintenance</p></body></html>")); !errors.Is(err, ErrNoTable) {
		t.Errorf("err = %v, want ErrNoTable", err)
	}
}

func TestHTMLCatalog_brotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte(catalogPage))
	bw.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	tbl, err := (&HTMLCatalog{URL: srv.URL, Client: srv.Client()}).Table(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := tbl.Get("BBC World"); !ok || id != "bbc-world" {
		t.Errorf("BBC World = %q, %v", id, ok)
	}
}

func TestHTMLCatalog_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	if _, err := (&HTMLCatalog{URL: srv.URL}).Table(context.Background()); err == nil {
		t.Error("want error for 404")
	}
}

const xmltvDoc = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="abc.us"><display-name>ABC News</display-name><display-name lang="en">ABC</display-name></channel>
  <programme start="20240101000000 +0000" stop="20240101010000 +0000" channel="abc.us"><title>Late</title></programme>
  <channel id=""><display-name>Nameless</display-name></channel>
  <channel id="bbc.uk"><display-name> BBC World </display-name></channel>
</tv>`

func TestParseXMLTV(t *testing.T) {
	tbl, err := ParseXMLTV([]byte(xmltvDoc))
	if err != nil {
		t.Fatal(err)
	}
	got := tableEntries(tbl)
	want := [][2]string{{"ABC News", "abc.us"}, {"ABC", "abc.us"}, {"BBC World", "bbc.uk"}}
	if len(got) != len(want) {
		t.Fatalf("entries = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestXMLTV_fileAndURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	os.WriteFile(path, []byte(xmltvDoc), 0o600)
	if tbl, err := (&XMLTV{Location: path}).Table(context.Background()); err != nil || tbl.Len() != 3 {
		t.Errorf("file: len=%d err=%v", tbl.Len(), err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(xmltvDoc))
	}))
	defer srv.Close()
	if tbl, err := (&XMLTV{Location: srv.URL + "/guide.xml"}).Table(context.Background()); err != nil || tbl.Len() != 3 {
		t.Errorf("url: len=%d err=%v", tbl.Len(), err)
	}

	if _, err := ParseXMLTV([]byte("<tv><channel id=\"x\">")); err == nil {
		t.Error("want error for truncated document")
	}
}

func TestSnapshot_roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.json")
	in := epglink.TableOf("Zeta", "z", "Alpha", "a", "Mid", "m")
	if err := SaveSnapshot(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := (&Snapshot{Path: path}).Table(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := tableEntries(out)
	if len(got) != 3 || got[0][0] != "Zeta" || got[2][0] != "Mid" {
		t.Errorf("order not kept: %v", got)
	}
}

func TestSnapshot_missing(t *testing.T) {
	_, err := (&Snapshot{Path: filepath.Join(t.TempDir(), "none.json")}).Table(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

type countingSource struct {
	calls int32
	table *epglink.Table
	err   error
}

func (s *countingSource) Table(context.Context) (*epglink.Table, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.table, s.err
}

func TestCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.json")
	src := &countingSource{table: epglink.TableOf("ABC News", "abc")}
	c := &Cached{Source: src, Path: path, MaxAge: time.Hour}

	for i := 0; i < 2; i++ {
		tbl, err := c.Table(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if id, _ := tbl.Get("ABC News"); id != "abc" {
			t.Errorf("id = %q", id)
		}
	}
	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Errorf("source calls = %d, want 1 (second served from snapshot)", n)
	}
}

func TestCached_staleFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.json")
	if err := SaveSnapshot(path, epglink.TableOf("Old", "old")); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-48 * time.Hour)
	os.Chtimes(path, past, past)

	src := &countingSource{err: errors.New("catalog down")}
	tbl, err := (&Cached{Source: src, Path: path, MaxAge: time.Hour}).Table(context.Background())
	if err != nil {
		t.Fatalf("want stale snapshot, got %v", err)
	}
	if id, _ := tbl.Get("Old"); id != "old" || src.calls != 1 {
		t.Errorf("id = %q calls = %d", id, src.calls)
	}

	_, err = (&Cached{Source: src, Path: filepath.Join(t.TempDir(), "none.json")}).Table(context.Background())
	if err == nil || err.Error() != "catalog down" {
		t.Errorf("err = %v, want source error", err)
	}
}
