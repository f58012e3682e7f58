package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "IPTV_CONSTRUCTOR_") {
			t.Setenv(k, "")
		}
	}
}

func TestLoad_defaults(t *testing.T) {
	clearEnv(t)
	c := Load()
	if c.Input != "stream.m3u" || c.Output != "stream-formatted.m3u" {
		t.Errorf("paths = %q %q", c.Input, c.Output)
	}
	if c.EPGSite != "" || c.EPGSource != "html" || c.EPGEnabled {
		t.Errorf("epg = %q %q %v", c.EPGSite, c.EPGSource, c.EPGEnabled)
	}
	if !c.CheckEnabled || c.ProbeTimeout != 3*time.Second || c.ProbeConcurrency != 32 {
		t.Errorf("probe = %v %v %d", c.CheckEnabled, c.ProbeTimeout, c.ProbeConcurrency)
	}
	if !c.DropDead || c.RelocatedCategory != "stopped working" {
		t.Errorf("writer = %v %q", c.DropDead, c.RelocatedCategory)
	}
	if c.RequiredAttributes != nil || c.CategoryRenames != nil {
		t.Errorf("policy should be empty: %+v", c)
	}
}

func TestLoad_overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPTV_CONSTRUCTOR_EPG", "yes")
	t.Setenv("IPTV_CONSTRUCTOR_EPG_SOURCE", "XMLTV")
	t.Setenv("IPTV_CONSTRUCTOR_PROBE_TIMEOUT", "750ms")
	t.Setenv("IPTV_CONSTRUCTOR_PROBE_CONCURRENCY", "not-a-number")
	t.Setenv("IPTV_CONSTRUCTOR_PROBE_RATE", "12.5")
	t.Setenv("IPTV_CONSTRUCTOR_REQUIRED_ATTRS", "tvg-id, tvg-logo,,")
	t.Setenv("IPTV_CONSTRUCTOR_RENAME_CATEGORIES", "Germany VIP=German, broken, Kids=Children")
	t.Setenv("IPTV_CONSTRUCTOR_DROP_DEAD", "false")

	c := Load()
	if !c.EPGEnabled || c.EPGSource != "xmltv" {
		t.Errorf("epg = %v %q", c.EPGEnabled, c.EPGSource)
	}
	if c.ProbeTimeout != 750*time.Millisecond || c.ProbeConcurrency != 32 || c.ProbeRate != 12.5 {
		t.Errorf("probe = %v %d %v", c.ProbeTimeout, c.ProbeConcurrency, c.ProbeRate)
	}
	if !reflect.DeepEqual(c.RequiredAttributes, []string{"tvg-id", "tvg-logo"}) {
		t.Errorf("required = %q", c.RequiredAttributes)
	}
	want := map[string]string{"Germany VIP": "German", "Kids": "Children"}
	if !reflect.DeepEqual(c.CategoryRenames, want) {
		t.Errorf("renames = %v", c.CategoryRenames)
	}
	if c.DropDead {
		t.Error("DropDead should be false")
	}
}

func TestParseRenames(t *testing.T) {
	m, skipped := ParseRenames("a=b,=x,y=,c")
	if !reflect.DeepEqual(m, map[string]string{"a": "b"}) || skipped != 3 {
		t.Errorf("got %v skipped=%d", m, skipped)
	}
	if m, _ := ParseRenames(""); m != nil {
		t.Errorf("empty = %v", m)
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `required_attributes: [tvg-id, tvg-logo]
exempt_categories:
  - German
rename_categories:
  Germany VIP: German
drop_dead: false
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	c := Load()
	c.ApplyPolicy(p)
	if !reflect.DeepEqual(c.RequiredAttributes, []string{"tvg-id", "tvg-logo"}) ||
		!reflect.DeepEqual(c.ExemptCategories, []string{"German"}) ||
		c.CategoryRenames["Germany VIP"] != "German" || c.DropDead {
		t.Errorf("config after policy = %+v", c)
	}
	if c.RelocatedCategory != "stopped working" {
		t.Errorf("unset policy field changed config: %q", c.RelocatedCategory)
	}
}

func TestLoadPolicy_errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadPolicy(filepath.Join(dir, "none.yaml")); err == nil {
		t.Error("want error for missing file")
	}
	typo := filepath.Join(dir, "typo.yaml")
	os.WriteFile(typo, []byte("drop_ded: true\n"), 0o644)
	if _, err := LoadPolicy(typo); err == nil {
		t.Error("want error for unknown key")
	}
	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, nil, 0o644)
	if p, err := LoadPolicy(empty); err != nil || p == nil {
		t.Errorf("empty policy: %v %v", p, err)
	}
}
