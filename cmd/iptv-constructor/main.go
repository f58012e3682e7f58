// Command iptv-constructor rebuilds IPTV playlists: it groups entries by
// category, links them to EPG ids and drops streams that no longer answer.
//
//	build  Parse a playlist, match EPG ids, probe streams, write the grouped playlist
//	fix    Drop unreachable entries and keep everything else in input order
//	epg    Fetch the EPG catalog and save it as a JSON snapshot
//	serve  Rebuild on a schedule and serve the playlist, /healthz and /metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/snapetech/iptvconstructor/internal/config"
	"github.com/snapetech/iptvconstructor/internal/pipeline"
)

// playlistFlags are shared by build, fix and serve.
type playlistFlags struct {
	in, out     *string
	check       *bool
	concurrency *int
	deadline    *time.Duration
	timeout     *time.Duration
	cacheFile   *string
}

func addPlaylistFlags(fs *flag.FlagSet, cfg *config.Config) playlistFlags {
	return playlistFlags{
		in:          fs.String("in", "", "Input playlist path or URL (default: IPTV_CONSTRUCTOR_INPUT)"),
		out:         fs.String("out", "", "Output playlist path (default: IPTV_CONSTRUCTOR_OUTPUT)"),
		check:       fs.Bool("check", cfg.CheckEnabled, "Probe streams and handle dead entries"),
		concurrency: fs.Int("concurrency", cfg.ProbeConcurrency, "Concurrent probes"),
		deadline:    fs.Duration("deadline", cfg.ProbeDeadline, "Cap on total probing time (0 = none); pending probes count as dead"),
		timeout:     fs.Duration("timeout", cfg.ProbeTimeout, "Per-probe timeout"),
		cacheFile:   fs.String("probe-cache", cfg.ProbeCacheFile, "JSON file reusing fresh probe results across runs"),
	}
}

func (f playlistFlags) apply(cfg *config.Config) {
	if *f.in != "" {
		cfg.Input = *f.in
	}
	if *f.out != "" {
		cfg.Output = *f.out
	}
	cfg.CheckEnabled = *f.check
	cfg.ProbeConcurrency = *f.concurrency
	cfg.ProbeDeadline = *f.deadline
	cfg.ProbeTimeout = *f.timeout
	cfg.ProbeCacheFile = *f.cacheFile
}

// policyFlags are the writer policy overrides of build and serve.
type policyFlags struct {
	fs       *flag.FlagSet
	epg      *bool
	keepDead *bool
	required *string
	exempt   *string
	rename   *string
	policy   *string
	metrics  *string
}

func addPolicyFlags(fs *flag.FlagSet, cfg *config.Config) policyFlags {
	return policyFlags{
		fs:       fs,
		epg:      fs.Bool("epg", cfg.EPGEnabled, "Set tvg-id from the EPG catalog by fuzzy name match"),
		keepDead: fs.Bool("keep-dead", !cfg.DropDead, "Move dead entries to the relocated category instead of dropping them"),
		required: fs.String("required", "", "Comma-separated attributes to keep, e.g. tvg-id,tvg-logo (default: all)"),
		exempt:   fs.String("exempt", "", "Comma-separated categories never probed"),
		rename:   fs.String("rename", "", "Category renames old=new,old2=new2"),
		policy:   fs.String("policy", cfg.PolicyFile, "YAML writer policy file"),
		metrics:  fs.String("metrics-file", cfg.MetricsFile, "Write Prometheus textfile metrics here after each build"),
	}
}

// apply layers the policy file, then flags given on the command line, over cfg.
func (f policyFlags) apply(cfg *config.Config) error {
	set := make(map[string]bool)
	f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if *f.policy != "" {
		p, err := config.LoadPolicy(*f.policy)
		if err != nil {
			return err
		}
		cfg.ApplyPolicy(p)
	}
	cfg.EPGEnabled = *f.epg
	if set["keep-dead"] {
		cfg.DropDead = !*f.keepDead
	}
	if v := config.SplitList(*f.required); v != nil {
		cfg.RequiredAttributes = v
	}
	if v := config.SplitList(*f.exempt); v != nil {
		cfg.ExemptCategories = v
	}
	if *f.rename != "" {
		m, skipped := config.ParseRenames(*f.rename)
		if skipped > 0 {
			log.Printf("-rename: ignored %d malformed item(s)", skipped)
		}
		cfg.CategoryRenames = m
	}
	cfg.MetricsFile = *f.metrics
	return nil
}

func setupLogging(path string) {
	if path == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}))
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[iptv-constructor] ")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <build|fix|epg|serve> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  build  Group, EPG-link and probe a playlist\n")
		fmt.Fprintf(os.Stderr, "  fix    Drop unreachable entries, keep input order\n")
		fmt.Fprintf(os.Stderr, "  epg    Save the EPG catalog as a JSON snapshot\n")
		fmt.Fprintf(os.Stderr, "  serve  Rebuild on a schedule and serve /playlist.m3u\n")
		os.Exit(1)
	}

	cfg := config.Load()
	setupLogging(cfg.LogFile)

	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	buildPlaylist := addPlaylistFlags(buildCmd, cfg)
	buildPolicy := addPolicyFlags(buildCmd, cfg)

	fixCmd := flag.NewFlagSet("fix", flag.ExitOnError)
	fixPlaylist := addPlaylistFlags(fixCmd, cfg)

	epgCmd := flag.NewFlagSet("epg", flag.ExitOnError)
	epgOut := epgCmd.String("out", "", "Snapshot path (default: IPTV_CONSTRUCTOR_EPG_SNAPSHOT)")
	epgSource := epgCmd.String("source", cfg.EPGSource, "html, xmltv or iptvorg")
	epgURL := epgCmd.String("url", cfg.EPGSite, "Catalog page, XMLTV location or channels.json URL (default depends on -source)")
	epgCountries := epgCmd.String("countries", "", "iptvorg only: comma-separated ISO country codes to keep")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	servePlaylist := addPlaylistFlags(serveCmd, cfg)
	servePolicy := addPolicyFlags(serveCmd, cfg)
	serveAddr := serveCmd.String("addr", cfg.ListenAddr, "Listen address")
	serveEvery := serveCmd.String("every", cfg.Schedule, "Cron spec for rebuilds, e.g. \"@every 6h\" or \"0 */4 * * *\"")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "build":
		_ = buildCmd.Parse(os.Args[2:])
		buildPlaylist.apply(cfg)
		if err := buildPolicy.apply(cfg); err != nil {
			log.Fatalf("Build failed: %v", err)
		}
		b := newBuilder(cfg)
		res, err := b.Build(ctx)
		if err != nil {
			log.Fatalf("Build failed: %v", err)
		}
		log.Printf("Wrote %s: %d channels kept", res.Output, res.Stats.Kept)

	case "fix":
		_ = fixCmd.Parse(os.Args[2:])
		fixPlaylist.apply(cfg)
		cfg.EPGEnabled = false
		b := newBuilder(cfg)
		res, err := b.Fix(ctx)
		if err != nil {
			log.Fatalf("Fix failed: %v", err)
		}
		fmt.Println(res.Stats.Kept)

	case "epg":
		_ = epgCmd.Parse(os.Args[2:])
		out := *epgOut
		if out == "" {
			out = cfg.EPGSnapshot
		}
		cfg.EPGEnabled, cfg.CheckEnabled = true, false
		cfg.EPGSource, cfg.EPGSite = *epgSource, *epgURL
		if v := config.SplitList(*epgCountries); v != nil {
			cfg.EPGCountries = v
		}
		// Always fetch fresh: the snapshot is the output here.
		cfg.EPGSnapshot = ""
		b := newBuilder(cfg)
		n, err := b.SaveTable(ctx, out)
		if err != nil {
			log.Fatalf("EPG fetch failed: %v", err)
		}
		log.Printf("Saved %d EPG names to %s", n, out)

	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		servePlaylist.apply(cfg)
		if err := servePolicy.apply(cfg); err != nil {
			log.Fatalf("Serve failed: %v", err)
		}
		srv := &pipeline.Server{Builder: newBuilder(cfg), Addr: *serveAddr, Schedule: *serveEvery}

		sigHUP := make(chan os.Signal, 1)
		signal.Notify(sigHUP, syscall.SIGHUP)
		defer signal.Stop(sigHUP)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-sigHUP:
					log.Print("SIGHUP: rebuilding playlist")
					_ = srv.Rebuild(ctx)
				}
			}
		}()

		if err := srv.Run(ctx); err != nil {
			log.Fatalf("Serve failed: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func newBuilder(cfg *config.Config) *pipeline.Builder {
	b, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	return b
}
