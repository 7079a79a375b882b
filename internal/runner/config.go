// Package runner serves a conformance test page to a list of browsers, one
// at a time, and collects the plain-text results each page posts back.
package runner

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config errors.
var (
	ErrNoTestURL      = errors.New("runner: test.url is required")
	ErrNoBrowsers     = errors.New("runner: no browsers configured")
	ErrBrowserName    = errors.New("runner: invalid browser name")
	ErrDuplicateName  = errors.New("runner: duplicate browser name")
	ErrInvalidPorts   = errors.New("runner: invalid port_range")
	ErrInvalidDriver  = errors.New("runner: invalid driver")
	ErrInvalidTimeout = errors.New("runner: invalid test.timeout")
	ErrReservedArg    = errors.New("runner: reserved test.args key")
)

// Driver selects how a browser is started.
type Driver string

const (
	// DriverProcess spawns the browser as a plain child process.
	DriverProcess Driver = "process"
	// DriverDevTools starts the browser through the DevTools protocol and
	// captures a screenshot once results arrive.
	DriverDevTools Driver = "devtools"
)

// Config describes a test run. JSON configs are accepted as YAML.
type Config struct {
	OutputDir string    `yaml:"output_dir"`
	Root      string    `yaml:"root"`
	Host      string    `yaml:"host"`
	PortRange []int     `yaml:"port_range"`
	Test      Test      `yaml:"test"`
	Browsers  []Browser `yaml:"browsers"`
}

// Test is the page every browser loads.
type Test struct {
	URL  string         `yaml:"url"`
	Args map[string]any `yaml:"args"`

	// Timeout is a Go duration string. Empty means no deadline.
	Timeout string `yaml:"timeout"`

	timeout time.Duration
}

// Deadline returns the parsed per-browser timeout, zero when unset.
func (t *Test) Deadline() time.Duration {
	return t.timeout
}

// Query encodes Args as a query string with keys in sorted order.
func (t *Test) Query() url.Values {
	q := url.Values{}
	keys := make([]string, 0, len(t.Args))
	for k := range t.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, fmt.Sprint(t.Args[k]))
	}
	return q
}

// Browser is one browser under test.
type Browser struct {
	Name   string   `yaml:"name"`
	Args   []string `yaml:"args"`
	Driver Driver   `yaml:"driver"`

	Linux   *Platform `yaml:"linux"`
	Darwin  *Platform `yaml:"darwin"`
	Windows *Platform `yaml:"windows"`
	Win32   *Platform `yaml:"win32"`
}

// Platform is the per-OS executable and extra arguments.
type Platform struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

// Launch is a browser resolved for the current OS.
type Launch struct {
	Name   string
	Path   string
	Args   []string
	Driver Driver
}

// Resolve picks the platform entry for goos. Common arguments come before
// platform arguments. It reports false when the browser has no usable entry
// for goos.
func (b *Browser) Resolve(goos string) (Launch, bool) {
	var p *Platform
	switch goos {
	case "linux":
		p = b.Linux
	case "darwin":
		p = b.Darwin
	case "windows", "win32":
		p = b.Windows
		if p == nil {
			p = b.Win32
		}
	}
	if p == nil || p.Path == "" {
		return Launch{}, false
	}

	args := make([]string, 0, len(b.Args)+len(p.Args))
	args = append(args, b.Args...)
	args = append(args, p.Args...)
	driver := b.Driver
	if driver == "" {
		driver = DriverProcess
	}
	return Launch{Name: b.Name, Path: p.Path, Args: args, Driver: driver}, true
}

// DefaultConfig returns a Config with every optional field set.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: "results",
		Root:      ".",
		Host:      "localhost",
		PortRange: []int{8000, 9000},
	}
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runner: read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML or JSON config over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("runner: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config and fills derived fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Test.URL) == "" {
		return ErrNoTestURL
	}
	if len(c.PortRange) != 2 || c.PortRange[0] <= 0 ||
		c.PortRange[0] > c.PortRange[1] || c.PortRange[1] > 65535 {
		return fmt.Errorf("%w: %v", ErrInvalidPorts, c.PortRange)
	}

	if _, ok := c.Test.Args[RunParam]; ok {
		return fmt.Errorf("%w: %q", ErrReservedArg, RunParam)
	}

	c.Test.timeout = 0
	if c.Test.Timeout != "" {
		d, err := time.ParseDuration(c.Test.Timeout)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, c.Test.Timeout)
		}
		c.Test.timeout = d
	}

	if len(c.Browsers) == 0 {
		return ErrNoBrowsers
	}
	seen := make(map[string]bool, len(c.Browsers))
	for i := range c.Browsers {
		b := &c.Browsers[i]
		if b.Name == "" || strings.ContainsAny(b.Name, `/\`) || b.Name == "." || b.Name == ".." {
			return fmt.Errorf("%w: browsers[%d] %q", ErrBrowserName, i, b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, b.Name)
		}
		seen[b.Name] = true
		switch b.Driver {
		case "", DriverProcess, DriverDevTools:
		default:
			return fmt.Errorf("%w: %q for browser %q", ErrInvalidDriver, b.Driver, b.Name)
		}
	}
	return nil
}
