package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/gogpu/conform"
)

// ExitAlreadyRunning is the exit code browsers use when they hand the URL to
// an instance that is already running.
const ExitAlreadyRunning = 20

const stopGrace = 3 * time.Second

// ErrNoScreenshot is returned by instances that cannot capture the page.
var ErrNoScreenshot = errors.New("runner: driver cannot capture screenshots")

// Exit describes how a browser process ended.
type Exit struct {
	Code int
	Err  error
}

// Instance is a started browser.
type Instance interface {
	// Exited yields one Exit when the browser ends.
	Exited() <-chan Exit
	// Screenshot saves a PNG of the test page.
	Screenshot(ctx context.Context, path string) error
	// Stop terminates the browser and its child processes.
	Stop() error
}

// Starter starts a resolved browser on a URL.
type Starter interface {
	Start(ctx context.Context, l Launch, url string) (Instance, error)
}

// StarterFunc adapts a function to Starter.
type StarterFunc func(ctx context.Context, l Launch, url string) (Instance, error)

// Start calls f.
func (f StarterFunc) Start(ctx context.Context, l Launch, url string) (Instance, error) {
	return f(ctx, l, url)
}

// ProcessStarter spawns browsers as child processes with the URL as the
// last argument.
type ProcessStarter struct{}

// Start implements Starter.
func (ProcessStarter) Start(_ context.Context, l Launch, url string) (Instance, error) {
	args := append(append([]string(nil), l.Args...), url)
	cmd := exec.Command(l.Path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("runner: start %s: %w", l.Name, err)
	}
	conform.Logger().Info("runner: browser started", "browser", l.Name, "pid", cmd.Process.Pid, "url", url)

	p := &childProcess{cmd: cmd, exited: make(chan Exit, 1)}
	go func() {
		err := cmd.Wait()
		code := 0
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code, err = ee.ExitCode(), nil
		}
		p.exited <- Exit{Code: code, Err: err}
	}()
	return p, nil
}

type childProcess struct {
	cmd    *exec.Cmd
	exited chan Exit
}

func (p *childProcess) Exited() <-chan Exit {
	return p.exited
}

func (p *childProcess) Screenshot(context.Context, string) error {
	return ErrNoScreenshot
}

func (p *childProcess) Stop() error {
	return stopTree(int32(p.cmd.Process.Pid))
}

// stopTree terminates pid and its descendants, children first, and kills
// whatever is still alive after a grace period.
func stopTree(pid int32) error {
	root, err := process.NewProcess(pid)
	if err != nil {
		// Already gone.
		return nil
	}
	tree := descendants(root)
	tree = append(tree, root)

	for _, p := range tree {
		_ = p.Terminate()
	}

	deadline := time.Now().Add(stopGrace)
	for _, p := range tree {
		for time.Now().Before(deadline) {
			if running, err := p.IsRunning(); err != nil || !running {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}

	var errs []error
	for _, p := range tree {
		if running, err := p.IsRunning(); err == nil && running {
			if err := p.Kill(); err != nil {
				errs = append(errs, fmt.Errorf("kill %d: %w", p.Pid, err))
			}
		}
	}
	return errors.Join(errs...)
}

// descendants lists the process tree below p, deepest first.
func descendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, c := range children {
		out = append(out, descendants(c)...)
		out = append(out, c)
	}
	return out
}

// runningInstances returns the pids of processes whose executable is path.
func runningInstances(path string) []int32 {
	want, err := exec.LookPath(path)
	if err != nil {
		want = path
	}
	if abs, err := filepath.Abs(want); err == nil {
		want = abs
	}
	want = filepath.Clean(want)

	procs, err := process.Processes()
	if err != nil {
		conform.Logger().Debug("runner: listing processes failed", "err", err)
		return nil
	}
	var pids []int32
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue
		}
		if filepath.Clean(exe) == want {
			pids = append(pids, p.Pid)
		}
	}
	return pids
}
