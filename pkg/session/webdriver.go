package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/tebeka/selenium"

	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/endpoint"
)

// RemoteFunc opens a W3C WebDriver session at urlPrefix.
type RemoteFunc func(caps selenium.Capabilities, urlPrefix string) (selenium.WebDriver, error)

// Service is a locally spawned driver binary.
type Service interface {
	Stop() error
}

// ServiceFunc starts the driver binary for a browser on port and returns it
// together with the URL prefix it serves.
type ServiceFunc func(browser capability.Browser, binary string, port int, output io.Writer) (Service, string, error)

// webDriver adapts a selenium.WebDriver, optionally owning the local driver
// binary that serves it.
type webDriver struct {
	wd      selenium.WebDriver
	service Service
}

func (d *webDriver) ID() string { return d.wd.SessionID() }
func (d *webDriver) Navigate(url string) error { return d.wd.Get(url) }
func (d *webDriver) CurrentURL() (string, error) { return d.wd.CurrentURL() }
func (d *webDriver) Title() (string, error) { return d.wd.Title() }
func (d *webDriver) Screenshot() ([]byte, error) { return d.wd.Screenshot() }
func (d *webDriver) PageSource() (string, error) { return d.wd.PageSource() }

func (d *webDriver) Prepare(opts PrepareOptions) error {
	if opts.PageLoad > 0 {
		if err := d.wd.SetPageLoadTimeout(opts.PageLoad); err != nil {
			return fmt.Errorf("set page load timeout: %w", err)
		}
	}
	if opts.Maximize {
		if err := d.wd.MaximizeWindow(""); err != nil {
			return fmt.Errorf("maximize window: %w", err)
		}
	}
	if opts.ClearCookies {
		if err := d.wd.DeleteAllCookies(); err != nil {
			return fmt.Errorf("delete cookies: %w", err)
		}
	}
	return nil
}

// Quit deletes the session, then stops the local driver binary if any. The
// binary is stopped even when the delete fails.
func (d *webDriver) Quit() error {
	var errs []error
	if err := d.wd.Quit(); err != nil {
		errs = append(errs, fmt.Errorf("quit session: %w", err))
	}
	if d.service != nil {
		if err := d.service.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop driver service: %w", err))
		}
	}
	return errors.Join(errs...)
}

// dialRemote opens a session on a grid or cloud hub.
func dialRemote(remote RemoteFunc, caps selenium.Capabilities, urlPrefix string) (Driver, error) {
	wd, err := remote(caps, urlPrefix)
	if err != nil {
		return nil, err
	}
	return &webDriver{wd: wd}, nil
}

// WebDriverLocal runs chromedriver or geckodriver on this machine.
type WebDriverLocal struct {
	Remote       RemoteFunc
	StartService ServiceFunc

	// Output receives the driver binary's stdout and stderr
	Output io.Writer
}

// NewWebDriverLocal returns a local dialer backed by tebeka/selenium.
func NewWebDriverLocal(output io.Writer) *WebDriverLocal {
	return &WebDriverLocal{
		Remote:       selenium.NewRemote,
		StartService: startDriverService,
		Output:       output,
	}
}

// Dial starts the driver binary for the requested browser and opens a session on it.
func (d *WebDriverLocal) Dial(ctx context.Context, ep endpoint.Local, req Request) (Driver, error) {
	binary := ep.ChromeDriverPath
	if req.Spec.Browser == capability.Firefox {
		binary = ep.GeckoDriverPath
	}

	port := ep.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, fmt.Errorf("pick driver port: %w", err)
		}
		port = p
	}

	service, urlPrefix, err := d.StartService(req.Spec.Browser, binary, port, d.Output)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	wd, err := d.Remote(req.Capabilities, urlPrefix)
	if err != nil {
		_ = service.Stop()
		return nil, err
	}

	return &webDriver{wd: wd, service: service}, nil
}

func startDriverService(browser capability.Browser, binary string, port int, output io.Writer) (Service, string, error) {
	var opts []selenium.ServiceOption
	if output != nil {
		opts = append(opts, selenium.Output(output))
	}

	switch browser {
	case capability.Chrome:
		svc, err := selenium.NewChromeDriverService(binary, port, opts...)
		if err != nil {
			return nil, "", err
		}
		return svc, fmt.Sprintf("http://localhost:%d/wd/hub", port), nil
	case capability.Firefox:
		svc, err := selenium.NewGeckoDriverService(binary, port, opts...)
		if err != nil {
			return nil, "", err
		}
		return svc, fmt.Sprintf("http://localhost:%d", port), nil
	default:
		return nil, "", fmt.Errorf("no local driver for browser %q", browser)
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
