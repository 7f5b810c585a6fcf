// Package session opens browser sessions against the selected endpoint and
// tears them down when the owning test ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tebeka/selenium"

	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/endpoint"
	"github.com/entrhq/uitest/pkg/logging"
	"github.com/entrhq/uitest/pkg/metrics"
)

// DefaultStartupTimeout bounds session startup when the configuration does
// not.
const DefaultStartupTimeout = 60 * time.Second

// Request is everything a dialer needs to open one session.
type Request struct {
	Spec         capability.BrowserSpec
	Capabilities selenium.Capabilities
	Options      capability.Options
}

// LocalDialer opens sessions for endpoint.Local.
type LocalDialer interface {
	Dial(ctx context.Context, ep endpoint.Local, req Request) (Driver, error)
}

// FactoryOptions configures a Factory. Zero values select the real
// tebeka/selenium and Playwright backends.
type FactoryOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// DriverOutput receives output of locally spawned driver processes
	DriverOutput io.Writer

	// Remote opens grid and cloud sessions
	Remote RemoteFunc

	// Local maps each local driver backend to its dialer
	Local map[config.LocalDriver]LocalDialer
}

// Factory opens sessions. One Factory serves one worker process.
type Factory struct {
	logger  *logging.Logger
	metrics *metrics.Registry
	remote  RemoteFunc
	local   map[config.LocalDriver]LocalDialer
	now     func() time.Time
}

// NewFactory creates a session factory.
func NewFactory(opts FactoryOptions) *Factory {
	f := &Factory{
		logger:  opts.Logger,
		metrics: opts.Metrics,
		remote:  opts.Remote,
		local:   opts.Local,
		now:     time.Now,
	}
	if f.logger == nil {
		f.logger = logging.Nop()
	}
	if f.remote == nil {
		f.remote = selenium.NewRemote
	}
	if f.local == nil {
		f.local = map[config.LocalDriver]LocalDialer{
			config.DriverWebDriver:  NewWebDriverLocal(opts.DriverOutput),
			config.DriverPlaywright: NewPlaywrightLocal(opts.DriverOutput),
		}
	}
	return f
}

// OpenOptions identify the session's owner.
type OpenOptions struct {
	TestName string
}

// Open makes one attempt to open a session on ep. It fails with a
// *SessionError when the endpoint refuses the request, when the post-open
// setup fails, or when no session is ready within cfg.Timeouts.SessionOpen.
// Retrying is left to the caller.
func (f *Factory) Open(ctx context.Context, ep endpoint.Endpoint, spec capability.BrowserSpec, cfg config.RunConfiguration, opts OpenOptions) (*Session, error) {
	// The endpoint decides which vendor options the descriptor carries
	spec.Mode = ep.Mode()

	capOpts := capability.OptionsFromConfig(cfg, opts.TestName)
	req := Request{
		Spec:         spec,
		Capabilities: capability.Descriptor(spec, capOpts),
		Options:      capOpts,
	}

	timeout := cfg.Timeouts.SessionOpen
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}

	f.logger.Infof("opening %s session on %s for %s (timeout %s)", spec, ep, opts.TestName, timeout)

	prep := PrepareOptions{
		Maximize:     cfg.Maximize,
		ClearCookies: true,
		PageLoad:     cfg.Timeouts.PageLoad,
	}

	// The deadline covers the post-open setup as well as the dial.
	start := f.now()
	driver, err := dialWithin(ctx, timeout, func(dialCtx context.Context) (Driver, error) {
		v := &dialVisitor{ctx: dialCtx, factory: f, req: req}
		if err := ep.Accept(v); err != nil {
			return nil, err
		}
		if err := v.driver.Prepare(prep); err != nil {
			_ = v.driver.Quit()
			return nil, fmt.Errorf("prepare session: %w", err)
		}
		return v.driver, nil
	})

	elapsed := f.now().Sub(start)
	f.metrics.ObserveOpen(string(ep.Mode()), string(spec.Browser), elapsed, err)

	if err != nil {
		sessErr := &SessionError{
			Mode:     string(ep.Mode()),
			Endpoint: ep.String(),
			Browser:  spec.String(),
			Err:      err,
		}
		f.logger.Errorf("%v", sessErr)
		return nil, sessErr
	}

	s := &Session{
		ID:       driver.ID(),
		Endpoint: ep,
		Spec:     spec,
		TestName: opts.TestName,
		OpenedAt: f.now(),
		driver:   driver,
		onClose:  f.closed,
	}
	f.logger.Infof("session %s opened in %s", s.ID, elapsed.Round(time.Millisecond))
	return s, nil
}

// closed runs after a session's driver has quit.
func (f *Factory) closed(s *Session, err error) error {
	f.metrics.ObserveClose(string(s.Endpoint.Mode()), err)
	if err != nil {
		f.logger.Warnf("%v", err)
		return err
	}
	f.logger.Infof("session %s closed", s.ID)
	return nil
}

// Close releases resources shared by the local dialers, such as the
// Playwright driver process.
func (f *Factory) Close() error {
	var errs []error
	for _, d := range f.local {
		if c, ok := d.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// dialVisitor opens the session for whichever endpoint variant it visits.
type dialVisitor struct {
	ctx     context.Context
	factory *Factory
	req     Request
	driver  Driver
}

func (v *dialVisitor) VisitLocal(ep endpoint.Local) error {
	dialer, ok := v.factory.local[ep.Driver]
	if !ok {
		return fmt.Errorf("no dialer for local driver %q", ep.Driver)
	}
	d, err := dialer.Dial(v.ctx, ep, v.req)
	if err != nil {
		return err
	}
	v.driver = d
	return nil
}

func (v *dialVisitor) VisitRemoteGrid(ep endpoint.RemoteGrid) error {
	d, err := dialRemote(v.factory.remote, v.req.Capabilities, ep.URL)
	if err != nil {
		return err
	}
	v.driver = d
	return nil
}

func (v *dialVisitor) VisitCloud(ep endpoint.Cloud) error {
	hub, err := ep.AuthenticatedURL()
	if err != nil {
		return err
	}
	d, err := dialRemote(v.factory.remote, v.req.Capabilities, hub)
	if err != nil {
		return err
	}
	v.driver = d
	return nil
}

// dialWithin runs dial and waits at most timeout for it. WebDriver clients
// do not take a context, so dial runs in its own goroutine; a session that
// arrives after the deadline is quit so it does not leak on the endpoint.
func dialWithin(ctx context.Context, timeout time.Duration, dial func(context.Context) (Driver, error)) (Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		driver Driver
		err    error
	}
	done := make(chan result, 1)

	go func() {
		d, err := dial(ctx)
		done <- result{driver: d, err: err}
	}()

	select {
	case r := <-done:
		return r.driver, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil && r.driver != nil {
				_ = r.driver.Quit()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrStartupTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}
