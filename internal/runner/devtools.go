package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/gogpu/conform"
)

// DevToolsStarter starts Chromium-based browsers through the DevTools
// protocol. The page can be captured once results arrive.
type DevToolsStarter struct{}

// Start implements Starter.
func (DevToolsStarter) Start(ctx context.Context, l Launch, url string) (Instance, error) {
	ln := launcher.New().Context(ctx).Bin(l.Path).Headless(false)
	for _, raw := range l.Args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			ln = ln.Set(flags.Flag(name), val)
		} else {
			ln = ln.Set(flags.Flag(name))
		}
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("runner: launch %s: %w", l.Name, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("runner: connect %s: %w", l.Name, err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		_ = browser.Close()
		ln.Kill()
		return nil, fmt.Errorf("runner: open page in %s: %w", l.Name, err)
	}
	conform.Logger().Info("runner: browser started", "browser", l.Name, "pid", ln.PID(), "url", url, "driver", DriverDevTools)

	d := &devtoolsBrowser{
		launcher: ln,
		browser:  browser,
		page:     page,
		exited:   make(chan Exit, 1),
	}
	go func() {
		// Cleanup returns once the browser process has exited.
		ln.Cleanup()
		d.exited <- Exit{}
	}()
	return d, nil
}

type devtoolsBrowser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	exited   chan Exit

	stopOnce sync.Once
}

func (d *devtoolsBrowser) Exited() <-chan Exit {
	return d.exited
}

func (d *devtoolsBrowser) Screenshot(ctx context.Context, path string) error {
	page := d.page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("runner: wait for page: %w", err)
	}
	png, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("runner: screenshot: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("runner: screenshot: %w", err)
	}
	return nil
}

func (d *devtoolsBrowser) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		err = d.browser.Close()
		if pid := d.launcher.PID(); pid != 0 {
			if terr := stopTree(int32(pid)); terr != nil && err == nil {
				err = terr
			}
		}
	})
	return err
}
