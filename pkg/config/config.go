// Package config resolves the run configuration for a test worker from
// layered sources: packaged defaults, the env file section for the selected
// environment, the process environment and explicit CLI parameters.
package config

import (
	"time"
)

// Environment names a target deployment of the application under test.
type Environment string

const (
	EnvQA   Environment = "qa"
	EnvUAT  Environment = "uat"
	EnvProd Environment = "prod"
)

// Environments lists every accepted environment name.
var Environments = []Environment{EnvQA, EnvUAT, EnvProd}

func lookupEnvironment(name string) (Environment, bool) {
	for _, env := range Environments {
		if string(env) == name {
			return env, true
		}
	}
	return "", false
}

// ParseEnvironment validates an environment name.
func ParseEnvironment(name string) (Environment, error) {
	env, ok := lookupEnvironment(name)
	if !ok {
		return "", NewError(KeyEnvironment, "unknown environment %q (want qa, uat or prod)", name)
	}
	return env, nil
}

// ExecutionMode selects where browser sessions run. Exactly one mode is
// active for a run.
type ExecutionMode string

const (
	// ModeLocal starts a browser on this machine
	ModeLocal ExecutionMode = "local"
	// ModeGrid connects to a self-hosted Selenium/Selenoid grid
	ModeGrid ExecutionMode = "grid"
	// ModeCloud connects to a cloud browser vendor
	ModeCloud ExecutionMode = "cloud"
)

// LocalDriver selects the backend used for ModeLocal.
type LocalDriver string

const (
	// DriverWebDriver spawns chromedriver/geckodriver and speaks W3C WebDriver
	DriverWebDriver LocalDriver = "webdriver"
	// DriverPlaywright launches the browser through Playwright
	DriverPlaywright LocalDriver = "playwright"
)

// Credentials are the application login credentials for an environment.
type Credentials struct {
	Email    string
	Password string
}

// String masks the password.
func (c Credentials) String() string {
	return c.Email + ":" + Mask(KeyPassword, c.Password)
}

// RemoteConfig configures ModeGrid.
type RemoteConfig struct {
	// URL is the hub URL, e.g. http://localhost:4444/wd/hub
	URL string
}

// CloudConfig configures ModeCloud.
type CloudConfig struct {
	URL       string
	Username  string
	AccessKey string
	Build     string
	Platform  string
}

// LocalConfig configures ModeLocal.
type LocalConfig struct {
	Driver           LocalDriver
	ChromeDriverPath string
	GeckoDriverPath  string
	// Port for the driver binary; 0 picks a free port
	Port int
}

// GridConfig holds grid-specific capability options.
type GridConfig struct {
	EnableVNC        bool
	EnableVideo      bool
	ScreenResolution string
	SessionTimeout   time.Duration
}

// Timeouts groups the run's time bounds.
type Timeouts struct {
	// SessionOpen bounds the wait for a new browser session
	SessionOpen time.Duration
	PageLoad    time.Duration

	// Short, Medium and Long are the wait budgets handed to page objects
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// UploadConfig configures artifact publishing to S3-compatible storage.
type UploadConfig struct {
	Enabled   bool
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// RunConfiguration is the fully resolved, typed configuration of one run.
// It is built once per worker process by Resolve and passed by value.
type RunConfiguration struct {
	Environment Environment
	BaseURL     string
	LoginURL    string
	Credentials Credentials

	Browser        string
	BrowserVersion string
	Headless       bool
	Incognito      bool
	Maximize       bool

	Mode   ExecutionMode
	Remote RemoteConfig
	Cloud  CloudConfig
	Local  LocalConfig
	Grid   GridConfig

	Timeouts Timeouts

	ArtifactsDir string
	LogsDir      string
	LogLevel     string

	Upload UploadConfig

	values  map[string]string
	origins map[string]string
}

// Value returns the resolved raw value of key.
func (c RunConfiguration) Value(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Origin returns the layer that supplied key.
func (c RunConfiguration) Origin(key string) string {
	return c.origins[key]
}
