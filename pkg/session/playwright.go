package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/endpoint"
)

// PlaywrightLocal launches local browsers through Playwright instead of a
// driver binary. The Playwright driver process is started on first use and
// shared by every session of the worker until Close.
type PlaywrightLocal struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	installed   map[capability.Browser]bool
	output      io.Writer
	initialized bool
}

// NewPlaywrightLocal creates the Playwright dialer. Installer and driver
// output goes to output.
func NewPlaywrightLocal(output io.Writer) *PlaywrightLocal {
	if output == nil {
		output = io.Discard
	}
	return &PlaywrightLocal{
		installed: make(map[capability.Browser]bool),
		output:    output,
	}
}

// playwrightBrowser maps a browser family to the Playwright engine name.
func playwrightBrowser(b capability.Browser) string {
	if b == capability.Firefox {
		return "firefox"
	}
	return "chromium"
}

// initialize installs the browser engine and starts Playwright.
func (p *PlaywrightLocal) initialize(b capability.Browser) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := &playwright.RunOptions{
		Browsers: []string{playwrightBrowser(b)},
		Verbose:  false,
		Stdout:   p.output,
		Stderr:   p.output,
	}

	if !p.installed[b] {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright %s: %w", playwrightBrowser(b), err)
		}
		p.installed[b] = true
	}

	if p.initialized {
		return nil
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	p.playwright = pw
	p.initialized = true
	return nil
}

// Dial launches a browser, an isolated context and a page.
func (p *PlaywrightLocal) Dial(ctx context.Context, ep endpoint.Local, req Request) (Driver, error) {
	if err := p.initialize(req.Spec.Browser); err != nil {
		return nil, err
	}

	headless := req.Options.Headless

	browserType := p.playwright.Chromium
	if req.Spec.Browser == capability.Firefox {
		browserType = p.playwright.Firefox
	}

	// Launch browser
	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	// Each session gets a fresh context, so no cookies carry over
	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		NoViewport: playwright.Bool(!headless),
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		browserContext.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &playwrightDriver{
		id:      uuid.NewString(),
		browser: browser,
		context: browserContext,
		page:    page,
	}, nil
}

// Close stops the Playwright driver process.
func (p *PlaywrightLocal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || p.playwright == nil {
		return nil
	}
	if err := p.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	p.initialized = false
	return nil
}

// playwrightDriver is one browser, context and page.
type playwrightDriver struct {
	id      string
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func (d *playwrightDriver) ID() string { return d.id }

func (d *playwrightDriver) Navigate(url string) error {
	_, err := d.page.Goto(url)
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) CurrentURL() (string, error) { return d.page.URL(), nil }
func (d *playwrightDriver) Title() (string, error) { return d.page.Title() }
func (d *playwrightDriver) PageSource() (string, error) { return d.page.Content() }

func (d *playwrightDriver) Screenshot() ([]byte, error) {
	return d.page.Screenshot()
}

func (d *playwrightDriver) Prepare(opts PrepareOptions) error {
	if opts.PageLoad > 0 {
		d.page.SetDefaultNavigationTimeout(float64(opts.PageLoad.Milliseconds()))
	}
	return nil
}

// Quit closes page, context and browser, continuing past failures.
func (d *playwrightDriver) Quit() error {
	var errs []error
	if err := d.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
