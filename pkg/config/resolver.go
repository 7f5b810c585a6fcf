package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Resolve merges the configured sources into a RunConfiguration.
//
// Precedence, lowest to highest: packaged defaults, shared env file keys, the
// env file section of the selected environment, the process environment and
// CLI params. Merging is shallow: each dotted key from a higher layer replaces
// the lower value entirely. Every failure is a *ConfigError.
func Resolve(src Sources) (RunConfiguration, error) {
	defaults, err := loadDefaults(src.Defaults)
	if err != nil {
		return RunConfiguration{}, err
	}

	file, err := loadEnvFile(src.File)
	if err != nil {
		return RunConfiguration{}, err
	}

	var environ layer
	if src.Environ != nil {
		environ = loadEnviron(src.Environ)
	} else {
		environ = layer{name: SourceEnv, values: map[string]string{}}
	}

	params, err := loadParams(src.Params)
	if err != nil {
		return RunConfiguration{}, err
	}

	// The environment picks the file section, so it is resolved first with
	// the same precedence as every other key.
	envName := firstValue(KeyEnvironment, params, environ, layer{name: SourceFile, values: file.shared}, defaults)
	env, err := ParseEnvironment(envName)
	if err != nil {
		return RunConfiguration{}, err
	}

	section, ok := file.sections[env]
	if !ok && len(file.sections) > 0 {
		return RunConfiguration{}, &ConfigError{
			Key:     KeyEnvironment,
			Source:  SourceFile,
			Message: "environment " + string(env) + " has no section in " + src.File,
		}
	}

	layers := []layer{
		defaults,
		{name: SourceFile, values: file.shared},
		{name: sectionSource(env), values: section},
		environ,
		params,
	}

	values := map[string]string{}
	origins := map[string]string{}
	for _, l := range layers {
		for k, v := range l.values {
			values[k] = v
			origins[k] = l.name
		}
	}
	values[KeyEnvironment] = string(env)

	cfg, err := build(values, origins)
	if err != nil {
		return RunConfiguration{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RunConfiguration{}, err
	}
	return cfg, nil
}

func firstValue(key string, layers ...layer) string {
	for _, l := range layers {
		if v, ok := l.values[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// build converts merged raw values into the typed configuration.
func build(values, origins map[string]string) (RunConfiguration, error) {
	p := parser{values: values, origins: origins}

	cfg := RunConfiguration{
		Environment: Environment(values[KeyEnvironment]),
		BaseURL:     p.str(KeyBaseURL),
		LoginURL:    p.str(KeyLoginURL),
		Credentials: Credentials{
			Email:    p.str(KeyEmail),
			Password: p.str(KeyPassword),
		},
		Browser:        strings.ToLower(p.str(KeyBrowser)),
		BrowserVersion: p.str(KeyBrowserVersion),
		Headless:       p.boolean(KeyHeadless),
		Incognito:      p.boolean(KeyIncognito),
		Maximize:       p.boolean(KeyMaximize),
		Remote: RemoteConfig{
			URL: p.str(KeyRemoteURL),
		},
		Cloud: CloudConfig{
			URL:       p.str(KeyCloudURL),
			Username:  p.str(KeyCloudUsername),
			AccessKey: p.str(KeyCloudAccessKey),
			Build:     p.str(KeyCloudBuild),
			Platform:  p.str(KeyCloudPlatform),
		},
		Local: LocalConfig{
			Driver:           LocalDriver(p.str(KeyLocalDriver)),
			ChromeDriverPath: p.str(KeyChromeDriver),
			GeckoDriverPath:  p.str(KeyGeckoDriver),
			Port:             p.integer(KeyLocalPort),
		},
		Grid: GridConfig{
			EnableVNC:        p.boolean(KeyGridVNC),
			EnableVideo:      p.boolean(KeyGridVideo),
			ScreenResolution: p.str(KeyGridResolution),
			SessionTimeout:   p.duration(KeyGridSessionTime),
		},
		Timeouts: Timeouts{
			SessionOpen: p.duration(KeySessionOpenTimeout),
			PageLoad:    p.duration(KeyPageLoadTimeout),
			Short:       p.duration(KeyShortWait),
			Medium:      p.duration(KeyMediumWait),
			Long:        p.duration(KeyLongWait),
		},
		ArtifactsDir: p.str(KeyArtifactsDir),
		LogsDir:      p.str(KeyLogsDir),
		LogLevel:     strings.ToLower(p.str(KeyLogLevel)),
		Upload: UploadConfig{
			Enabled:   p.boolean(KeyUploadEnabled),
			Endpoint:  p.str(KeyUploadEndpoint),
			Bucket:    p.str(KeyUploadBucket),
			AccessKey: p.str(KeyUploadAccessKey),
			SecretKey: p.str(KeyUploadSecretKey),
			Region:    p.str(KeyUploadRegion),
			UseSSL:    p.boolean(KeyUploadSSL),
		},
		values:  values,
		origins: origins,
	}

	remote := p.boolean(KeyRemoteEnabled)
	cloud := p.boolean(KeyCloudEnabled)
	if p.err != nil {
		return RunConfiguration{}, p.err
	}

	switch {
	case remote && cloud:
		return RunConfiguration{}, MutuallyExclusive()
	case cloud:
		cfg.Mode = ModeCloud
	case remote:
		cfg.Mode = ModeGrid
	default:
		cfg.Mode = ModeLocal
	}

	return cfg, nil
}

// parser records the first conversion error so build reads linearly.
type parser struct {
	values  map[string]string
	origins map[string]string
	err     error
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.values[key])
}

func (p *parser) fail(key, msg string, err error) {
	if p.err == nil {
		p.err = &ConfigError{Key: key, Source: p.origins[key], Message: msg, Err: err}
	}
}

func (p *parser) boolean(key string) bool {
	raw := p.str(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, "invalid boolean "+strconv.Quote(raw), err)
	}
	return v
}

func (p *parser) integer(key string) int {
	raw := p.str(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, "invalid integer "+strconv.Quote(raw), err)
	}
	return v
}

// duration accepts Go duration strings; a bare integer is seconds.
func (p *parser) duration(key string) time.Duration {
	raw := p.str(key)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, "invalid duration "+strconv.Quote(raw), err)
	}
	return v
}

// Validate checks required keys and cross-field constraints.
func (c RunConfiguration) Validate() error {
	if _, err := ParseEnvironment(string(c.Environment)); err != nil {
		return err
	}

	if c.BaseURL == "" {
		return c.missing(KeyBaseURL)
	}
	if err := c.checkURL(KeyBaseURL, c.BaseURL); err != nil {
		return err
	}
	if c.Browser == "" {
		return c.missing(KeyBrowser)
	}
	if c.Timeouts.SessionOpen <= 0 {
		return &ConfigError{Key: KeySessionOpenTimeout, Source: c.origins[KeySessionOpenTimeout], Message: "must be positive"}
	}

	switch c.Mode {
	case ModeGrid:
		if c.Remote.URL == "" {
			return c.missing(KeyRemoteURL)
		}
		if err := c.checkURL(KeyRemoteURL, c.Remote.URL); err != nil {
			return err
		}
	case ModeCloud:
		if c.Cloud.URL == "" {
			return c.missing(KeyCloudURL)
		}
		if err := c.checkURL(KeyCloudURL, c.Cloud.URL); err != nil {
			return err
		}
		if c.Cloud.Username == "" {
			return c.missing(KeyCloudUsername)
		}
		if c.Cloud.AccessKey == "" {
			return c.missing(KeyCloudAccessKey)
		}
	case ModeLocal:
		if c.Local.Driver != DriverWebDriver && c.Local.Driver != DriverPlaywright {
			return &ConfigError{Key: KeyLocalDriver, Source: c.origins[KeyLocalDriver], Message: "unknown local driver " + strconv.Quote(string(c.Local.Driver))}
		}
		if c.Local.Port < 0 || c.Local.Port > 65535 {
			return &ConfigError{Key: KeyLocalPort, Source: c.origins[KeyLocalPort], Message: "port out of range"}
		}
	default:
		return NewError("", "unknown execution mode %q", c.Mode)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ConfigError{Key: KeyLogLevel, Source: c.origins[KeyLogLevel], Message: "unknown log level " + strconv.Quote(c.LogLevel)}
	}

	if c.ArtifactsDir == "" {
		return c.missing(KeyArtifactsDir)
	}
	if c.LogsDir == "" {
		return c.missing(KeyLogsDir)
	}

	if c.Upload.Enabled {
		if c.Upload.Endpoint == "" {
			return c.missing(KeyUploadEndpoint)
		}
		if c.Upload.Bucket == "" {
			return c.missing(KeyUploadBucket)
		}
	}

	return nil
}

func (c RunConfiguration) missing(key string) error {
	return &ConfigError{Key: key, Message: "required key is missing"}
}

func (c RunConfiguration) checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Key: key, Source: c.origins[key], Message: "invalid URL " + strconv.Quote(raw), Err: err}
	}
	return nil
}
