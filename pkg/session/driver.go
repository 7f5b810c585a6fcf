package session

import (
	"time"
)

// Driver is one live browser connection. Implementations wrap a W3C
// WebDriver client or a Playwright page.
type Driver interface {
	// ID returns the session id assigned by the endpoint
	ID() string

	// Navigate loads url in the current window
	Navigate(url string) error

	CurrentURL() (string, error)
	Title() (string, error)

	// Screenshot returns a PNG of the current viewport
	Screenshot() ([]byte, error)

	// PageSource returns the serialized DOM
	PageSource() (string, error)

	// Prepare applies the post-open window and timeout settings
	Prepare(opts PrepareOptions) error

	// Quit ends the session and releases every resource the driver owns.
	// For remote endpoints this deletes the session on the server.
	Quit() error
}

// PrepareOptions are applied to every freshly opened session.
type PrepareOptions struct {
	Maximize     bool
	ClearCookies bool
	PageLoad     time.Duration
}
