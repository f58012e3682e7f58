// Package pipeline runs one playlist build end to end: load, match guide
// ids, probe and write. Every CLI mode goes through a Builder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/snapetech/iptvconstructor/internal/config"
	"github.com/snapetech/iptvconstructor/internal/epglink"
	"github.com/snapetech/iptvconstructor/internal/guide"
	"github.com/snapetech/iptvconstructor/internal/httpclient"
	"github.com/snapetech/iptvconstructor/internal/m3u"
	"github.com/snapetech/iptvconstructor/internal/metrics"
	"github.com/snapetech/iptvconstructor/internal/probe"
	"github.com/snapetech/iptvconstructor/internal/render"
	"github.com/snapetech/iptvconstructor/internal/safeurl"
)

// Builder holds the collaborators of a build. New wires them from config;
// tests replace Source or Checker directly.
type Builder struct {
	Config  *config.Config
	Client  *http.Client
	Source  guide.Source  // nil when EPG matching is off
	Checker probe.Reacher // nil when liveness checking is off
	Cache   *probe.Cache
}

// Result describes one finished run.
type Result struct {
	RunID    string
	Parsed   int
	Skipped  int // malformed fragments dropped by the parser
	Match    *epglink.Report
	Stats    render.Stats
	Output   string
	Finished time.Time
	Duration time.Duration
}

func (r Result) SummaryString() string {
	s := fmt.Sprintf("run %s: parsed=%d skipped=%d %s in %s",
		r.RunID, r.Parsed, r.Skipped, r.Stats.SummaryString(), r.Duration.Round(time.Millisecond))
	if r.Match != nil {
		s += "; epg " + r.Match.SummaryString()
	}
	return s
}

// New builds the HTTP client, guide source and checker described by cfg.
func New(cfg *config.Config) (*Builder, error) {
	client, err := httpclient.WithProxy(cfg.Proxy, httpclient.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	b := &Builder{Config: cfg, Client: client}
	if cfg.EPGEnabled {
		if b.Source, err = NewSource(cfg, client); err != nil {
			return nil, err
		}
	}
	if cfg.CheckEnabled {
		b.Cache = probe.LoadCache(cfg.ProbeCacheFile, cfg.ProbeCacheTTL)
		if b.Checker, err = NewChecker(cfg, b.Cache); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// NewSource returns the guide source named by cfg.EPGSource, wrapped in a
// snapshot cache when cfg.EPGSnapshot is set.
func NewSource(cfg *config.Config, client *http.Client) (guide.Source, error) {
	var src guide.Source
	switch cfg.EPGSource {
	case "", "html":
		src = &guide.HTMLCatalog{URL: cfg.EPGSite, Client: client}
	case "xmltv":
		src = &guide.XMLTV{Location: cfg.EPGSite, Client: client}
	case "iptvorg":
		src = &guide.IPTVOrg{URL: cfg.EPGSite, Countries: cfg.EPGCountries, Client: client}
	case "snapshot":
		if cfg.EPGSnapshot == "" {
			return nil, errors.New("epg source snapshot needs a snapshot path")
		}
		return &guide.Snapshot{Path: cfg.EPGSnapshot}, nil
	default:
		return nil, fmt.Errorf("unknown epg source %q", cfg.EPGSource)
	}
	if cfg.EPGSnapshot == "" {
		return src, nil
	}
	return &guide.Cached{Source: src, Path: cfg.EPGSnapshot, MaxAge: cfg.EPGMaxAge}, nil
}

// NewChecker returns a probe.Checker configured from cfg.
func NewChecker(cfg *config.Config, cache *probe.Cache) (*probe.Checker, error) {
	client, err := httpclient.WithProxy(cfg.Proxy, cfg.ProbeTimeout)
	if err != nil {
		return nil, err
	}
	c := &probe.Checker{
		Client:        client,
		Timeout:       cfg.ProbeTimeout,
		AcceptPartial: cfg.ProbeAcceptPartial,
		VerifyHLS:     cfg.ProbeVerifyHLS,
		Cache:         cache,
	}
	if cfg.ProbePerHost > 0 {
		c.Hosts = httpclient.NewHostSemaphore(cfg.ProbePerHost)
	}
	if cfg.ProbeRate > 0 {
		burst := int(cfg.ProbeRate)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRate), burst)
	}
	return c, nil
}

// RenderOptions maps cfg's writer policy onto render.Options.
func (b *Builder) RenderOptions() render.Options {
	cfg := b.Config
	drop := cfg.DropDead
	return render.Options{
		RequiredAttributes: cfg.RequiredAttributes,
		ExemptCategories:   cfg.ExemptCategories,
		CategoryRenames:    cfg.CategoryRenames,
		DropDead:           &drop,
		Checker:            b.Checker,
		Concurrency:        cfg.ProbeConcurrency,
		Deadline:           cfg.ProbeDeadline,
		RelocatedCategory:  cfg.RelocatedCategory,
	}
}

// Build parses Config.Input, applies guide ids when a Source is set and
// writes the grouped playlist to Config.Output.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	return b.run(ctx, "build", func(ctx context.Context, res *Result, channels []m3u.Channel) error {
		if b.Source != nil {
			table, err := b.Source.Table(ctx)
			if err != nil {
				return fmt.Errorf("epg table: %w", err)
			}
			report, err := epglink.Apply(channels, table, b.Config.EPGMinScore)
			if err != nil {
				return err
			}
			res.Match = &report
			log.Printf("epg: %s", report.SummaryString())
		}
		st, err := render.WriteFile(ctx, b.Config.Output, channels, b.RenderOptions())
		res.Stats = st
		return err
	})
}

// Fix drops unreachable entries from Config.Input and writes the rest to
// Config.Output in input order, without grouping.
func (b *Builder) Fix(ctx context.Context) (Result, error) {
	return b.run(ctx, "fix", func(ctx context.Context, res *Result, channels []m3u.Channel) error {
		if b.Config.ProbeDeadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.Config.ProbeDeadline)
			defer cancel()
		}
		st, err := render.WriteFlatFile(ctx, b.Config.Output, channels, b.Checker, b.Config.ProbeConcurrency)
		res.Stats = st
		return err
	})
}

// SaveTable fetches the guide table and writes it as a JSON snapshot.
func (b *Builder) SaveTable(ctx context.Context, path string) (int, error) {
	if b.Source == nil {
		return 0, errors.New("no epg source configured")
	}
	t, err := b.Source.Table(ctx)
	if err != nil {
		return 0, err
	}
	if err := guide.SaveSnapshot(path, t); err != nil {
		return 0, err
	}
	return t.Len(), nil
}

func (b *Builder) run(ctx context.Context, mode string, body func(context.Context, *Result, []m3u.Channel) error) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Output: b.Config.Output}
	log.Printf("%s %s: %s -> %s", mode, res.RunID, safeurl.Redact(b.Config.Input), b.Config.Output)

	err := func() error {
		channels, skipped, err := b.load(ctx)
		if err != nil {
			return err
		}
		res.Parsed, res.Skipped = len(channels), skipped
		if skipped > 0 {
			log.Printf("%s %s: skipped %d malformed playlist fragments", mode, res.RunID, skipped)
		}
		return body(ctx, &res, channels)
	}()
	res.Finished = time.Now()
	res.Duration = res.Finished.Sub(start)
	b.saveCache()

	if err != nil {
		metrics.BuildsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("%s %s: %w", mode, res.RunID, err)
	}
	metrics.BuildsTotal.WithLabelValues("ok").Inc()
	metrics.LastBuild.Set(float64(res.Finished.Unix()))
	if b.Config.MetricsFile != "" {
		if err := metrics.WriteFile(b.Config.MetricsFile); err != nil {
			log.Printf("metrics file: %v", err)
		}
	}
	log.Print(res.SummaryString())
	return res, nil
}

// load reads the input playlist from a path or an http(s) URL.
func (b *Builder) load(ctx context.Context) ([]m3u.Channel, int, error) {
	in := b.Config.Input
	if in == "" {
		return nil, 0, errors.New("no input playlist")
	}
	var (
		data []byte
		err  error
	)
	if safeurl.IsHTTPOrHTTPS(in) {
		data, err = httpclient.Fetch(ctx, b.Client, in)
	} else {
		data, err = os.ReadFile(in)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read playlist: %w", err)
	}
	channels, perr := m3u.ParseStrict(string(data))
	skipped, err := splitParseErrors(perr)
	if err != nil {
		return nil, 0, fmt.Errorf("read playlist: %w", err)
	}
	return channels, skipped, nil
}

// splitParseErrors counts the abandoned fragments in a ParseStrict error and
// returns any read error that cut parsing short.
func splitParseErrors(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	}
	n := 0
	for _, e := range errs {
		var se *m3u.SyntaxError
		if !errors.As(e, &se) {
			return n, e
		}
		n++
	}
	return n, nil
}

func (b *Builder) saveCache() {
	if b.Cache == nil || b.Config.ProbeCacheFile == "" {
		return
	}
	if err := b.Cache.Save(b.Config.ProbeCacheFile); err != nil {
		log.Printf("probe cache: %v", err)
	}
}
