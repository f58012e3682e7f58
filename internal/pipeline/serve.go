package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/snapetech/iptvconstructor/internal/metrics"
)

// Server rebuilds the playlist on a cron schedule and serves the latest
// result over HTTP.
type Server struct {
	Builder *Builder
	Addr    string
	// Schedule is a cron spec ("@every 6h", "0 */4 * * *"). Empty means
	// build once at startup only.
	Schedule string

	buildMu  sync.Mutex
	mu       sync.RWMutex
	playlist []byte
	last     Result
	lastErr  error
}

// Rebuild runs one build and, on success, swaps in the new playlist.
// A failed build keeps serving the previous playlist.
func (s *Server) Rebuild(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	res, err := s.Builder.Build(ctx)
	if err != nil {
		log.Printf("rebuild: %v", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	data, err := os.ReadFile(res.Output)
	if err != nil {
		log.Printf("rebuild: read output: %v", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.playlist, s.last, s.lastErr = data, res, nil
	s.mu.Unlock()
	return nil
}

// Handler serves /playlist.m3u, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/playlist.m3u", s.servePlaylist())
	mux.Handle("/healthz", s.serveHealth())
	mux.Handle("/metrics", metrics.Handler())
	return logRequests(mux)
}

// Run builds once, schedules rebuilds and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
	if s.Schedule != "" {
		if _, err := c.AddFunc(s.Schedule, func() { _ = s.Rebuild(ctx) }); err != nil {
			return err
		}
	}
	go func() { _ = s.Rebuild(ctx) }()
	c.Start()
	defer func() { <-c.Stop().Done() }()

	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Serving playlist on %s (schedule %q)", addr, s.Schedule)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("Shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) servePlaylist() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		data, finished := s.playlist, s.last.Finished
		s.mu.RUnlock()
		if data == nil {
			http.Error(w, "playlist not built yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
		w.Header().Set("Last-Modified", finished.UTC().Format(http.TimeFormat))
		_, _ = w.Write(data)
	})
}

// serveHealth returns 200 {"status":"ok",...} once a build succeeded,
// 503 {"status":"loading"} before.
func (s *Server) serveHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		last, lastErr, ready := s.last, s.lastErr, s.playlist != nil
		s.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			body := map[string]interface{}{"status": "loading"}
			if lastErr != nil {
				body["last_error"] = lastErr.Error()
			}
			_ = json.NewEncoder(w).Encode(body)
			return
		}
		body := map[string]interface{}{
			"status":     "ok",
			"run_id":     last.RunID,
			"channels":   last.Stats.Kept,
			"dropped":    last.Stats.Dropped,
			"relocated":  last.Stats.Relocated,
			"last_build": last.Finished.Format(time.RFC3339),
		}
		if lastErr != nil {
			body["last_error"] = lastErr.Error()
		}
		_ = json.NewEncoder(w).Encode(body)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr,
		)
	})
}
