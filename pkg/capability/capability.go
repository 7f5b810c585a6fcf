// Package capability turns a browser choice into the session request sent to
// a WebDriver endpoint.
package capability

import (
	"fmt"
	"strings"

	"github.com/entrhq/uitest/pkg/config"
)

// Browser is a supported browser family.
type Browser string

const (
	Chrome  Browser = "chrome"
	Firefox Browser = "firefox"
)

// DefaultVersion is used when no browser version is requested.
const DefaultVersion = "latest"

// Browsers lists every supported family.
var Browsers = []Browser{Chrome, Firefox}

// ParseBrowser validates a browser family name.
func ParseBrowser(name string) (Browser, error) {
	normalized := Browser(strings.ToLower(strings.TrimSpace(name)))
	for _, b := range Browsers {
		if b == normalized {
			return b, nil
		}
	}
	return "", config.NewError(config.KeyBrowser, "unsupported browser %q (want chrome or firefox)", name)
}

// BrowserSpec is the requested browser for one session. Version is opaque:
// it is forwarded to the endpoint and never validated here.
type BrowserSpec struct {
	Browser Browser
	Version string
	Mode    config.ExecutionMode
}

// String renders the spec for logs, e.g. "firefox 118 (grid)".
func (s BrowserSpec) String() string {
	return fmt.Sprintf("%s %s (%s)", s.Browser, s.Version, s.Mode)
}

// Build validates the browser family and fills in the default version.
func Build(browser, version string, mode config.ExecutionMode) (BrowserSpec, error) {
	b, err := ParseBrowser(browser)
	if err != nil {
		return BrowserSpec{}, err
	}

	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}

	return BrowserSpec{Browser: b, Version: version, Mode: mode}, nil
}

// FromConfig builds the spec for the configured browser and mode.
func FromConfig(cfg config.RunConfiguration) (BrowserSpec, error) {
	return Build(cfg.Browser, cfg.BrowserVersion, cfg.Mode)
}
