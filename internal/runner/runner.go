package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/conform"
)

// Outcome is how a browser's run ended.
type Outcome string

// Outcomes.
const (
	OutcomeResults        Outcome = "results"
	OutcomeExited         Outcome = "exited"
	OutcomeAlreadyRunning Outcome = "already-running"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeFailed         Outcome = "failed"
)

const screenshotTimeout = 30 * time.Second

// BrowserResult is the outcome for one browser.
type BrowserResult struct {
	Browser    string
	Outcome    Outcome
	ExitCode   int
	Results    string
	Screenshot string
	Elapsed    time.Duration
	Err        error
}

// Summary lists the per-browser outcomes of a run.
type Summary struct {
	Port     int
	Browsers []BrowserResult
}

// Collected returns the number of browsers that posted results.
func (s *Summary) Collected() int {
	n := 0
	for _, b := range s.Browsers {
		if b.Outcome == OutcomeResults {
			n++
		}
	}
	return n
}

// Write prints the summary as a table.
func (s *Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BROWSER\tOUTCOME\tEXIT\tRESULTS")
	for _, b := range s.Browsers {
		detail := b.Results
		if b.Err != nil {
			detail = b.Err.Error()
		}
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Browser, b.Outcome, b.ExitCode, detail)
	}
	return tw.Flush()
}

// Runner drives browsers through the test page one at a time.
type Runner struct {
	cfg      *Config
	server   *Server
	goos     string
	starters map[Driver]Starter
	running  func(path string) []int32
}

// Option configures a Runner.
type Option func(*Runner)

// WithStarter replaces the starter used for a driver.
func WithStarter(d Driver, s Starter) Option {
	return func(r *Runner) { r.starters[d] = s }
}

// WithGOOS resolves browser platforms for goos instead of runtime.GOOS.
func WithGOOS(goos string) Option {
	return func(r *Runner) { r.goos = goos }
}

// WithRunningCheck replaces the already-running detection.
func WithRunningCheck(fn func(path string) []int32) Option {
	return func(r *Runner) { r.running = fn }
}

// New creates a Runner for a validated config.
func New(cfg *Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		server: NewServer(cfg),
		goos:   runtime.GOOS,
		starters: map[Driver]Starter{
			DriverProcess:  ProcessStarter{},
			DriverDevTools: DevToolsStarter{},
		},
		running: runningInstances,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Server returns the runner's HTTP server.
func (r *Runner) Server() *Server {
	return r.server
}

// Run serves the test files and runs every browser in order. It returns
// when all browsers are done or ctx is canceled.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	port, err := r.server.Listen(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Port: port}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	g.Go(func() error {
		return r.server.Serve(serveCtx)
	})
	g.Go(func() error {
		defer stopServing()
		for i := range r.cfg.Browsers {
			if gctx.Err() != nil {
				break
			}
			res := r.runBrowser(gctx, port, &r.cfg.Browsers[i])
			logOutcome(res)
			summary.Browsers = append(summary.Browsers, res)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *Runner) runBrowser(ctx context.Context, port int, b *Browser) (res BrowserResult) {
	start := time.Now()
	res.Browser = b.Name
	defer func() { res.Elapsed = time.Since(start) }()

	launch, ok := b.Resolve(r.goos)
	if !ok {
		res.Outcome = OutcomeSkipped
		res.Err = fmt.Errorf("no launch entry for %s", r.goos)
		return res
	}
	starter, ok := r.starters[launch.Driver]
	if !ok {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%w: %q", ErrInvalidDriver, launch.Driver)
		return res
	}

	if pids := r.running(launch.Path); len(pids) > 0 {
		conform.Logger().Warn("runner: browser already running", "browser", b.Name, "path", launch.Path, "pids", pids)
	}

	token, results := r.server.Register(b.Name)
	defer r.server.Unregister(token)

	inst, err := starter.Start(ctx, launch, r.server.TestURL(port, token))
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	var timeout <-chan time.Time
	if d := r.cfg.Test.Deadline(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	exited := inst.Exited()
	for {
		select {
		case got := <-results:
			r.collect(ctx, inst, launch, got, &res)
			stop(inst, b.Name)
			return res

		case ex := <-exited:
			// A page that posts and then closes its window races the exit.
			select {
			case got := <-results:
				r.collect(ctx, inst, launch, got, &res)
				return res
			default:
			}
			res.ExitCode = ex.Code
			res.Err = ex.Err
			if ex.Code == ExitAlreadyRunning {
				res.Outcome = OutcomeAlreadyRunning
				if timeout != nil {
					// The running instance was handed the URL and may
					// still post results before the deadline.
					exited = nil
					continue
				}
				return res
			}
			res.Outcome = OutcomeExited
			return res

		case <-timeout:
			if res.Outcome != OutcomeAlreadyRunning {
				res.Outcome = OutcomeTimeout
			}
			stop(inst, b.Name)
			return res

		case <-ctx.Done():
			res.Outcome = OutcomeFailed
			res.Err = ctx.Err()
			stop(inst, b.Name)
			return res
		}
	}
}

func (r *Runner) collect(ctx context.Context, inst Instance, launch Launch, got Result, res *BrowserResult) {
	res.Outcome = OutcomeResults
	res.Results = got.Path
	res.ExitCode = 0
	res.Err = nil
	if launch.Driver != DriverDevTools {
		return
	}
	shot := strings.TrimSuffix(got.Path, ".txt") + ".png"
	sctx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()
	if err := inst.Screenshot(sctx, shot); err != nil {
		conform.Logger().Warn("runner: screenshot failed", "browser", launch.Name, "err", err)
		return
	}
	res.Screenshot = shot
}

func stop(inst Instance, browser string) {
	if err := inst.Stop(); err != nil {
		conform.Logger().Warn("runner: stopping browser failed", "browser", browser, "err", err)
	}
}

func logOutcome(res BrowserResult) {
	attrs := []any{"browser", res.Browser, "outcome", string(res.Outcome), "elapsed", res.Elapsed}
	if res.Results != "" {
		attrs = append(attrs, "results", res.Results)
	}
	if res.Err != nil {
		attrs = append(attrs, "err", res.Err)
	}
	switch res.Outcome {
	case OutcomeResults:
		conform.Logger().Info("runner: browser done", attrs...)
	case OutcomeSkipped:
		conform.Logger().Info("runner: browser skipped", attrs...)
	case OutcomeAlreadyRunning:
		conform.Logger().Warn("runner: browser already running", attrs...)
	case OutcomeExited:
		if res.ExitCode != 0 {
			conform.Logger().Warn("runner: browser exited", append(attrs, "code", res.ExitCode)...)
			return
		}
		conform.Logger().Info("runner: browser exited", attrs...)
	default:
		if errors.Is(res.Err, context.Canceled) {
			conform.Logger().Info("runner: run canceled", attrs...)
			return
		}
		conform.Logger().Warn("runner: browser failed", attrs...)
	}
}
