// Package endpoint decides which WebDriver endpoint a session connects to.
//
// Endpoint is a closed set of variants: Local, RemoteGrid and Cloud. Code
// that needs per-variant behaviour implements Visitor, so adding a variant is
// a compile error in every consumer until it is handled.
package endpoint

import (
	"fmt"
	"net/url"

	"github.com/entrhq/uitest/pkg/config"
)

// Endpoint is where a browser session is opened.
type Endpoint interface {
	// Mode returns the execution mode this endpoint serves
	Mode() config.ExecutionMode

	// Accept dispatches to the matching Visitor method
	Accept(v Visitor) error

	// String describes the endpoint with secrets removed
	String() string

	sealed()
}

// Visitor handles each endpoint variant.
type Visitor interface {
	VisitLocal(Local) error
	VisitRemoteGrid(RemoteGrid) error
	VisitCloud(Cloud) error
}

// Local starts a browser on this machine.
type Local struct {
	Driver           config.LocalDriver
	ChromeDriverPath string
	GeckoDriverPath  string
	Port             int
}

func (Local) Mode() config.ExecutionMode { return config.ModeLocal }
func (e Local) Accept(v Visitor) error { return v.VisitLocal(e) }
func (e Local) String() string { return "local (" + string(e.Driver) + ")" }
func (Local) sealed() {}

// RemoteGrid is a Selenium/Selenoid hub.
type RemoteGrid struct {
	URL string
}

func (RemoteGrid) Mode() config.ExecutionMode { return config.ModeGrid }
func (e RemoteGrid) Accept(v Visitor) error { return v.VisitRemoteGrid(e) }
func (e RemoteGrid) String() string { return "grid " + e.URL }
func (RemoteGrid) sealed() {}

// Credentials authenticate against a cloud vendor.
type Credentials struct {
	Username  string
	AccessKey string
}

// Cloud is a cloud browser vendor hub.
type Cloud struct {
	URL         string
	Credentials Credentials
}

func (Cloud) Mode() config.ExecutionMode { return config.ModeCloud }
func (e Cloud) Accept(v Visitor) error { return v.VisitCloud(e) }
func (e Cloud) String() string { return fmt.Sprintf("cloud %s (user %s)", e.URL, e.Credentials.Username) }
func (Cloud) sealed() {}

// AuthenticatedURL returns the hub URL with the credentials embedded as
// userinfo, the form WebDriver clients send to the vendor.
func (e Cloud) AuthenticatedURL() (string, error) {
	u, err := url.Parse(e.URL)
	if err != nil {
		return "", fmt.Errorf("invalid cloud URL: %w", err)
	}
	u.User = url.UserPassword(e.Credentials.Username, e.Credentials.AccessKey)
	return u.String(), nil
}

// Select picks the endpoint for a run. Requesting both the grid and the cloud
// fails with a ConfigError before any I/O.
func Select(remote, cloud bool, cfg config.RunConfiguration) (Endpoint, error) {
	switch {
	case remote && cloud:
		return nil, config.MutuallyExclusive()

	case cloud:
		if cfg.Cloud.URL == "" {
			return nil, config.NewError(config.KeyCloudURL, "required key is missing")
		}
		if cfg.Cloud.Username == "" || cfg.Cloud.AccessKey == "" {
			return nil, config.NewError(config.KeyCloudAccessKey, "cloud execution requires a username and access key")
		}
		return Cloud{
			URL: cfg.Cloud.URL,
			Credentials: Credentials{
				Username:  cfg.Cloud.Username,
				AccessKey: cfg.Cloud.AccessKey,
			},
		}, nil

	case remote:
		if cfg.Remote.URL == "" {
			return nil, config.NewError(config.KeyRemoteURL, "required key is missing")
		}
		return RemoteGrid{URL: cfg.Remote.URL}, nil

	default:
		driver := cfg.Local.Driver
		if driver == "" {
			driver = config.DriverWebDriver
		}
		return Local{
			Driver:           driver,
			ChromeDriverPath: cfg.Local.ChromeDriverPath,
			GeckoDriverPath:  cfg.Local.GeckoDriverPath,
			Port:             cfg.Local.Port,
		}, nil
	}
}

// FromConfig selects the endpoint for the configuration's execution mode.
func FromConfig(cfg config.RunConfiguration) (Endpoint, error) {
	return Select(cfg.Mode == config.ModeGrid, cfg.Mode == config.ModeCloud, cfg)
}
