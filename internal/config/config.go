// Package config loads iptv-constructor settings from the environment, an
// optional .env file and an optional YAML writer policy.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting a build or serve run needs.
// Load from env; CLI flags override individual fields afterwards.
type Config struct {
	// Playlist in/out. Input may be a path or an http(s) URL.
	Input  string
	Output string

	// EPG matching
	EPGEnabled   bool
	EPGSource    string   // "html" | "xmltv" | "iptvorg" | "snapshot"
	EPGSite      string   // catalog page, XMLTV location or channels.json URL; "" = source default
	EPGCountries []string // iptvorg only: ISO country codes to keep
	EPGSnapshot  string   // JSON snapshot path; "" = no snapshot
	EPGMaxAge    time.Duration
	EPGMinScore  int // 0 = always apply the best match

	// Liveness probing
	CheckEnabled       bool
	ProbeTimeout       time.Duration
	ProbeConcurrency   int
	ProbePerHost       int
	ProbeRate          float64 // probes per second across all hosts; 0 = unlimited
	ProbeAcceptPartial bool    // also accept 206 Partial Content
	ProbeVerifyHLS     bool
	ProbeDeadline      time.Duration // cap on total probing time per build; 0 = none
	ProbeCacheFile     string        // "" = in-memory only
	ProbeCacheTTL      time.Duration
	Proxy              string // http, https or socks5 proxy for all outbound requests

	// Writer policy
	RequiredAttributes []string
	ExemptCategories   []string
	CategoryRenames    map[string]string
	DropDead           bool
	RelocatedCategory  string
	PolicyFile         string

	// Observability
	LogFile     string // rotated with lumberjack; "" = stderr only
	MetricsFile string // Prometheus textfile written after each build

	// serve mode
	ListenAddr string
	Schedule   string // cron spec for rebuilds
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	return &Config{
		Input:  getEnv("IPTV_CONSTRUCTOR_INPUT", "stream.m3u"),
		Output: getEnv("IPTV_CONSTRUCTOR_OUTPUT", "stream-formatted.m3u"),

		EPGEnabled:   getEnvBool("IPTV_CONSTRUCTOR_EPG", false),
		EPGSource:    strings.ToLower(getEnv("IPTV_CONSTRUCTOR_EPG_SOURCE", "html")),
		EPGSite:      getEnv("IPTV_CONSTRUCTOR_EPG_SITE", ""),
		EPGSnapshot:  getEnv("IPTV_CONSTRUCTOR_EPG_SNAPSHOT", "epg.json"),
		EPGCountries: getEnvList("IPTV_CONSTRUCTOR_EPG_COUNTRIES"),
		EPGMaxAge:    getEnvDuration("IPTV_CONSTRUCTOR_EPG_MAX_AGE", 24*time.Hour),
		EPGMinScore:  getEnvInt("IPTV_CONSTRUCTOR_EPG_MIN_SCORE", 0),

		CheckEnabled:       getEnvBool("IPTV_CONSTRUCTOR_CHECK", true),
		ProbeTimeout:       getEnvDuration("IPTV_CONSTRUCTOR_PROBE_TIMEOUT", 3*time.Second),
		ProbeConcurrency:   getEnvInt("IPTV_CONSTRUCTOR_PROBE_CONCURRENCY", 32),
		ProbePerHost:       getEnvInt("IPTV_CONSTRUCTOR_PROBE_PER_HOST", 4),
		ProbeRate:          getEnvFloat("IPTV_CONSTRUCTOR_PROBE_RATE", 0),
		ProbeAcceptPartial: getEnvBool("IPTV_CONSTRUCTOR_PROBE_ACCEPT_PARTIAL", false),
		ProbeVerifyHLS:     getEnvBool("IPTV_CONSTRUCTOR_PROBE_VERIFY_HLS", false),
		ProbeDeadline:      getEnvDuration("IPTV_CONSTRUCTOR_PROBE_DEADLINE", 0),
		ProbeCacheFile:     os.Getenv("IPTV_CONSTRUCTOR_PROBE_CACHE_FILE"),
		ProbeCacheTTL:      getEnvDuration("IPTV_CONSTRUCTOR_PROBE_CACHE_TTL", 4*time.Hour),
		Proxy:              os.Getenv("IPTV_CONSTRUCTOR_PROXY"),

		RequiredAttributes: getEnvList("IPTV_CONSTRUCTOR_REQUIRED_ATTRS"),
		ExemptCategories:   getEnvList("IPTV_CONSTRUCTOR_EXEMPT_CATEGORIES"),
		CategoryRenames:    getEnvMap("IPTV_CONSTRUCTOR_RENAME_CATEGORIES"),
		DropDead:           getEnvBool("IPTV_CONSTRUCTOR_DROP_DEAD", true),
		RelocatedCategory:  getEnv("IPTV_CONSTRUCTOR_RELOCATED_CATEGORY", "stopped working"),
		PolicyFile:         os.Getenv("IPTV_CONSTRUCTOR_POLICY_FILE"),

		LogFile:     os.Getenv("IPTV_CONSTRUCTOR_LOG_FILE"),
		MetricsFile: os.Getenv("IPTV_CONSTRUCTOR_METRICS_FILE"),

		ListenAddr: getEnv("IPTV_CONSTRUCTOR_ADDR", ":8080"),
		Schedule:   getEnv("IPTV_CONSTRUCTOR_SCHEDULE", "@every 6h"),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	return SplitList(os.Getenv(key))
}

// getEnvMap parses "old=new,old2=new2".
func getEnvMap(key string) map[string]string {
	m, _ := ParseRenames(os.Getenv(key))
	return m
}

// SplitList splits a comma-separated list, trimming items and dropping
// empty ones. It returns nil for a blank string.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseRenames parses "old=new,old2=new2" into a map. Items without '=' or
// with an empty side are skipped and reported by the returned count.
func ParseRenames(s string) (map[string]string, int) {
	var (
		m       map[string]string
		skipped int
	)
	for _, item := range SplitList(s) {
		from, to, ok := strings.Cut(item, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			skipped++
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[from] = to
	}
	return m, skipped
}
