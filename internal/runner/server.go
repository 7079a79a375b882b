package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gogpu/conform"
)

// ErrNoPort is returned when no port in the configured range could be bound.
var ErrNoPort = errors.New("runner: no free port in range")

const (
	maxListenAttempts = 10
	maxResultBytes    = 64 << 20

	unknownBrowser = "unknown"
)

// RunParam is the query parameter carrying the run token in test URLs and
// results POSTs. Test arguments with any other name pass through unchanged.
const RunParam = "conform_run"

// Result is one results POST written to disk.
type Result struct {
	Browser  string
	RunID    string
	Path     string
	Size     int
	Received time.Time
}

type activeRun struct {
	browser string
	results chan Result
}

// Server serves the test files and receives results.
type Server struct {
	cfg    *Config
	router chi.Router
	now    func() time.Time
	listen func(ctx context.Context, addr string) (net.Listener, error)

	mu       sync.Mutex
	runs     map[string]*activeRun
	listener net.Listener
}

// NewServer creates a server for cfg. It does not listen until Listen.
func NewServer(cfg *Config) *Server {
	s := &Server{
		cfg:  cfg,
		now:  time.Now,
		runs: make(map[string]*activeRun),
		listen: func(ctx context.Context, addr string) (net.Listener, error) {
			var lc net.ListenConfig
			return lc.Listen(ctx, "tcp", addr)
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Post("/finish", s.handleFinish)
	r.Handle("/*", http.FileServer(http.Dir(cfg.Root)))
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		conform.Logger().Debug("runner: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start))
	})
}

// Register starts tracking a run for browser. The returned token goes into
// the test URL as the run parameter. Results for the run are delivered on
// the returned channel.
func (s *Server) Register(browser string) (string, <-chan Result) {
	token := uuid.NewString()
	run := &activeRun{browser: browser, results: make(chan Result, 1)}
	s.mu.Lock()
	s.runs[token] = run
	s.mu.Unlock()
	return token, run.results
}

// Unregister stops tracking the run.
func (s *Server) Unregister(token string) {
	s.mu.Lock()
	delete(s.runs, token)
	s.mu.Unlock()
}

// lookup finds the run for token. Without a matching token the single active
// run is used, if there is exactly one.
func (s *Server) lookup(token string) (string, *activeRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[token]; ok {
		return token, run
	}
	if len(s.runs) == 1 {
		for t, run := range s.runs {
			return t, run
		}
	}
	return "", nil
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "text/plain" {
		http.Error(w, "results must be text/plain", http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResultBytes))
	if err != nil {
		http.Error(w, "reading results: "+err.Error(), http.StatusBadRequest)
		return
	}

	token, run := s.lookup(r.URL.Query().Get(RunParam))
	browser := unknownBrowser
	if run != nil {
		browser = run.browser
	}

	received := s.now()
	path, err := s.writeResults(browser, received, body)
	if err != nil {
		conform.Logger().Error("runner: writing results failed", "browser", browser, "err", err)
		http.Error(w, "writing results failed", http.StatusInternalServerError)
		return
	}
	conform.Logger().Info("runner: results written", "browser", browser, "path", path, "bytes", len(body))

	res := Result{Browser: browser, RunID: token, Path: path, Size: len(body), Received: received}
	if run != nil {
		select {
		case run.results <- res:
		default:
			conform.Logger().Warn("runner: extra results for run ignored", "browser", browser, "path", path)
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

func (s *Server) writeResults(browser string, t time.Time, body []byte) (string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		conform.Logger().Warn("runner: creating output dir failed", "dir", s.cfg.OutputDir, "err", err)
	}
	name := browser + "_" + strconv.FormatInt(t.UnixMilli(), 10) + ".txt"
	path := filepath.Join(s.cfg.OutputDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Listen binds a random port from the configured range. A failed bind is
// retried on a new random port up to ten times.
func (s *Server) Listen(ctx context.Context) (int, error) {
	lo, hi := s.cfg.PortRange[0], s.cfg.PortRange[1]
	for attempt := 1; attempt <= maxListenAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		port := lo + rand.IntN(hi-lo+1)
		ln, err := s.listen(ctx, net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)))
		if err != nil {
			conform.Logger().Warn("runner: bind failed, retrying", "port", port, "attempt", attempt, "err", err)
			continue
		}
		s.mu.Lock()
		s.listener = ln
		s.mu.Unlock()
		conform.Logger().Info("runner: listening", "addr", ln.Addr().String(), "root", s.cfg.Root)
		return port, nil
	}
	return 0, fmt.Errorf("%w: %d attempts in [%d, %d]", ErrNoPort, maxListenAttempts, lo, hi)
}

// Serve serves on the listener from Listen until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("runner: Serve called before Listen")
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("runner: shutdown: %w", err)
	}
	<-errc
	return nil
}

// TestURL builds the page URL for a run.
func (s *Server) TestURL(port int, token string) string {
	q := s.cfg.Test.Query()
	q.Set(RunParam, token)
	host := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
	path := s.cfg.Test.URL
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "http://" + host + "/" + path + sep + q.Encode()
}
