package session

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/tebeka/selenium"

	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/endpoint"
)

// Session is a live browser session owned by exactly one test. It is
// destroyed at teardown regardless of the test outcome.
type Session struct {
	// ID is the endpoint-assigned session id
	ID string

	// Endpoint is where the session runs
	Endpoint endpoint.Endpoint

	// Spec is the requested browser
	Spec capability.BrowserSpec

	// TestName is the test that owns the session
	TestName string

	// OpenedAt is when the session became usable
	OpenedAt time.Time

	driver    Driver
	onClose   func(*Session, error) error
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// Driver returns the backend-neutral driver.
func (s *Session) Driver() Driver {
	return s.driver
}

// WebDriver returns the underlying W3C client for page objects built on
// github.com/tebeka/selenium.
func (s *Session) WebDriver() (selenium.WebDriver, bool) {
	wd, ok := s.driver.(*webDriver)
	if !ok {
		return nil, false
	}
	return wd.wd, true
}

// Page returns the Playwright page when the session runs on the Playwright
// backend.
func (s *Session) Page() (playwright.Page, bool) {
	pw, ok := s.driver.(*playwrightDriver)
	if !ok {
		return nil, false
	}
	return pw.page, true
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close quits the driver. Only the first call does any work; later calls
// return nil. A failure is returned as a *TeardownError after it has been
// logged, so callers may ignore it.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		quitErr := s.driver.Quit()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if quitErr != nil {
			err = &TeardownError{SessionID: s.ID, Err: quitErr}
		}
		if s.onClose != nil {
			err = s.onClose(s, err)
		}
	})
	return err
}

// Teardown closes the session and swallows any teardown error.
func (s *Session) Teardown() {
	_ = s.Close()
}
