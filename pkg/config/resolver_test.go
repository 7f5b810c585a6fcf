package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigFile = `
remote:
  remote_url: http://localhost:4444/wd/hub
qa:
  base_url: https://qa.example.com
  credentials:
    email: qa@example.com
    password: qa-secret
uat:
  base_url: https://uat.example.com
  login_url: https://uat.example.com/login
  credentials:
    email: uat@example.com
    password: uat-secret
prod:
  base_url: https://shop.example.com
`

// writeConfig writes content to a temporary env file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(Sources{File: writeConfig(t, testConfigFile)})
	require.NoError(t, err)

	assert.Equal(t, EnvQA, cfg.Environment)
	assert.Equal(t, "https://qa.example.com", cfg.BaseURL)
	assert.Equal(t, "chrome", cfg.Browser)
	assert.Equal(t, "latest", cfg.BrowserVersion)
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, DriverWebDriver, cfg.Local.Driver)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.SessionOpen)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Short)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Medium)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Long)
	assert.Equal(t, 60*time.Minute, cfg.Grid.SessionTimeout)
	assert.True(t, cfg.Maximize)
	assert.Equal(t, SourceDefaults, cfg.Origin(KeyBrowser))
	assert.Equal(t, "file:qa", cfg.Origin(KeyBaseURL))
}

func TestResolveUATFirefoxLocal(t *testing.T) {
	cfg, err := Resolve(Sources{
		File: writeConfig(t, testConfigFile),
		Params: Params{
			KeyEnvironment:    "uat",
			KeyBrowser:        "firefox",
			KeyBrowserVersion: "118",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, EnvUAT, cfg.Environment)
	assert.Equal(t, "https://uat.example.com", cfg.BaseURL)
	assert.Equal(t, "https://uat.example.com/login", cfg.LoginURL)
	assert.Equal(t, Credentials{Email: "uat@example.com", Password: "uat-secret"}, cfg.Credentials)
	assert.Equal(t, "firefox", cfg.Browser)
	assert.Equal(t, "118", cfg.BrowserVersion)
	assert.Equal(t, ModeLocal, cfg.Mode)
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfig(t, testConfigFile)

	tests := []struct {
		name       string
		environ    []string
		params     Params
		wantURL    string
		wantSource string
	}{
		{
			name:       "file section",
			wantURL:    "https://qa.example.com",
			wantSource: "file:qa",
		},
		{
			name:       "process env beats file section",
			environ:    []string{"UITEST_BASE_URL=https://env.example.com"},
			wantURL:    "https://env.example.com",
			wantSource: SourceEnv,
		},
		{
			name:       "cli beats process env",
			environ:    []string{"UITEST_BASE_URL=https://env.example.com"},
			params:     Params{KeyBaseURL: "https://cli.example.com"},
			wantURL:    "https://cli.example.com",
			wantSource: SourceCLI,
		},
		{
			name:       "empty env var is ignored",
			environ:    []string{"UITEST_BASE_URL="},
			wantURL:    "https://qa.example.com",
			wantSource: "file:qa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(Sources{File: path, Environ: tt.environ, Params: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, cfg.BaseURL)
			assert.Equal(t, tt.wantSource, cfg.Origin(KeyBaseURL))
		})
	}
}

func TestResolveShallowMerge(t *testing.T) {
	cfg, err := Resolve(Sources{
		File:    writeConfig(t, testConfigFile),
		Environ: []string{"UITEST_CREDENTIALS_PASSWORD=from-env"},
	})
	require.NoError(t, err)

	// Only the overridden leaf changes; its sibling keeps the section value.
	assert.Equal(t, "qa@example.com", cfg.Credentials.Email)
	assert.Equal(t, "from-env", cfg.Credentials.Password)
}

func TestResolveEnvironmentSelection(t *testing.T) {
	path := writeConfig(t, testConfigFile)

	tests := []struct {
		name    string
		environ []string
		params  Params
		want    Environment
	}{
		{name: "default", want: EnvQA},
		{name: "legacy alias", environ: []string{"TEST_ENV=prod"}, want: EnvProd},
		{name: "canonical beats alias", environ: []string{"TEST_ENV=prod", "UITEST_ENVIRONMENT=uat"}, want: EnvUAT},
		{name: "cli beats env", environ: []string{"TEST_ENV=prod"}, params: Params{KeyEnvironment: "uat"}, want: EnvUAT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(Sources{File: path, Environ: tt.environ, Params: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Environment)
		})
	}
}

func TestResolveExecutionMode(t *testing.T) {
	path := writeConfig(t, testConfigFile)

	t.Run("remote", func(t *testing.T) {
		cfg, err := Resolve(Sources{File: path, Params: Params{KeyRemoteEnabled: "true"}})
		require.NoError(t, err)
		assert.Equal(t, ModeGrid, cfg.Mode)
		assert.Equal(t, "http://localhost:4444/wd/hub", cfg.Remote.URL)
	})

	t.Run("cloud with alias credentials", func(t *testing.T) {
		cfg, err := Resolve(Sources{
			File:    path,
			Environ: []string{"SAUCE_USERNAME=bob", "SAUCE_ACCESS_KEY=k3y"},
			Params:  Params{KeyCloudEnabled: "true"},
		})
		require.NoError(t, err)
		assert.Equal(t, ModeCloud, cfg.Mode)
		assert.Equal(t, "bob", cfg.Cloud.Username)
		assert.Equal(t, "k3y", cfg.Cloud.AccessKey)
	})

	t.Run("remote and cloud", func(t *testing.T) {
		_, err := Resolve(Sources{
			File:    path,
			Environ: []string{"UITEST_CLOUD_ENABLED=true"},
			Params:  Params{KeyRemoteEnabled: "true"},
		})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.True(t, errors.Is(err, ErrMutuallyExclusive))
		assert.Contains(t, err.Error(), "mutually exclusive execution modes")
	})
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		environ []string
		params  Params
		wantKey string
	}{
		{
			name:    "missing base url",
			file:    "qa:\n  login_url: https://qa.example.com/login\n",
			wantKey: KeyBaseURL,
		},
		{
			name:    "unknown environment",
			file:    testConfigFile,
			params:  Params{KeyEnvironment: "staging"},
			wantKey: KeyEnvironment,
		},
		{
			name:    "environment without section",
			file:    "qa:\n  base_url: https://qa.example.com\n",
			params:  Params{KeyEnvironment: "prod"},
			wantKey: KeyEnvironment,
		},
		{
			name:    "unknown key in file",
			file:    "qa:\n  base_url: https://qa.example.com\n  bsae_url: typo\n",
			wantKey: "bsae_url",
		},
		{
			name:    "unknown cli param",
			file:    testConfigFile,
			params:  Params{"brwoser": "chrome"},
			wantKey: "brwoser",
		},
		{
			name:    "remote without hub url",
			file:    "qa:\n  base_url: https://qa.example.com\n",
			params:  Params{KeyRemoteEnabled: "true"},
			wantKey: KeyRemoteURL,
		},
		{
			name:    "cloud without credentials",
			file:    testConfigFile,
			params:  Params{KeyCloudEnabled: "true"},
			wantKey: KeyCloudUsername,
		},
		{
			name:    "invalid boolean",
			file:    testConfigFile,
			environ: []string{"UITEST_HEADLESS=maybe"},
			wantKey: KeyHeadless,
		},
		{
			name:    "invalid duration",
			file:    testConfigFile,
			params:  Params{KeySessionOpenTimeout: "soon"},
			wantKey: KeySessionOpenTimeout,
		},
		{
			name:    "unknown local driver",
			file:    testConfigFile,
			params:  Params{KeyLocalDriver: "puppeteer"},
			wantKey: KeyLocalDriver,
		},
		{
			name:    "environment inside section",
			file:    "qa:\n  environment: uat\n  base_url: https://qa.example.com\n",
			wantKey: KeyEnvironment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(Sources{File: writeConfig(t, tt.file), Environ: tt.environ, Params: tt.params})
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestResolveMissingFile(t *testing.T) {
	_, err := Resolve(Sources{File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolveWithoutFile(t *testing.T) {
	cfg, err := Resolve(Sources{Params: Params{KeyBaseURL: "https://only-cli.example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "https://only-cli.example.com", cfg.BaseURL)
}

func TestResolveBareIntegerDurationIsSeconds(t *testing.T) {
	cfg, err := Resolve(Sources{
		File:   writeConfig(t, testConfigFile),
		Params: Params{KeySessionOpenTimeout: "45"},
	})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.SessionOpen)
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "UITEST_REMOTE_REMOTE_URL", EnvVar(KeyRemoteURL))
	assert.Equal(t, "UITEST_BROWSER", EnvVar(KeyBrowser))
}

func TestEnvironCarriesParams(t *testing.T) {
	path := writeConfig(t, testConfigFile)
	params := Params{
		KeyEnvironment:    "uat",
		KeyBrowser:        "firefox",
		KeyBrowserVersion: "118",
		KeyHeadless:       "true",
	}

	env := Environ(params, path)
	assert.Equal(t, []string{
		"UITEST_CONFIG=" + path,
		"UITEST_BROWSER=firefox",
		"UITEST_BROWSER_VERSION=118",
		"UITEST_ENVIRONMENT=uat",
		"UITEST_HEADLESS=true",
	}, env)

	direct, err := Resolve(Sources{File: path, Params: params})
	require.NoError(t, err)
	viaEnv, err := Resolve(Sources{File: path, Environ: env})
	require.NoError(t, err)

	assert.Equal(t, direct.Environment, viaEnv.Environment)
	assert.Equal(t, direct.BaseURL, viaEnv.BaseURL)
	assert.Equal(t, direct.Browser, viaEnv.Browser)
	assert.Equal(t, direct.BrowserVersion, viaEnv.BrowserVersion)
	assert.True(t, viaEnv.Headless)
	assert.Equal(t, SourceEnv, viaEnv.Origin(KeyBrowser))
}

func TestEnvironEmpty(t *testing.T) {
	assert.Empty(t, Environ(nil, ""))
}
