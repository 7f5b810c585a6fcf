package config

import (
	"sort"
	"strings"
)

// valueKind determines how a raw layered value is parsed.
type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindDuration
)

// Configuration keys. Layers are flattened to these dotted leaf keys before
// merging.
const (
	KeyEnvironment    = "environment"
	KeyBaseURL        = "base_url"
	KeyLoginURL       = "login_url"
	KeyEmail          = "credentials.email"
	KeyPassword       = "credentials.password"
	KeyBrowser        = "browser"
	KeyBrowserVersion = "browser_version"
	KeyHeadless       = "headless"
	KeyIncognito      = "incognito"
	KeyMaximize       = "maximize"

	KeyRemoteEnabled = "remote.enabled"
	KeyRemoteURL     = "remote.remote_url"

	KeyCloudEnabled   = "cloud.enabled"
	KeyCloudURL       = "cloud.url"
	KeyCloudUsername  = "cloud.username"
	KeyCloudAccessKey = "cloud.access_key"
	KeyCloudBuild     = "cloud.build"
	KeyCloudPlatform  = "cloud.platform"

	KeyLocalDriver     = "local.driver"
	KeyChromeDriver    = "local.chromedriver_path"
	KeyGeckoDriver     = "local.geckodriver_path"
	KeyLocalPort       = "local.port"
	KeyGridVNC         = "grid.enable_vnc"
	KeyGridVideo       = "grid.enable_video"
	KeyGridResolution  = "grid.screen_resolution"
	KeyGridSessionTime = "grid.session_timeout"

	KeySessionOpenTimeout = "timeouts.session_open"
	KeyPageLoadTimeout    = "timeouts.page_load"
	KeyShortWait          = "timeouts.short"
	KeyMediumWait         = "timeouts.medium"
	KeyLongWait           = "timeouts.long"

	KeyArtifactsDir = "artifacts.dir"
	KeyLogsDir      = "logs.dir"
	KeyLogLevel     = "log_level"

	KeyUploadEnabled   = "upload.enabled"
	KeyUploadEndpoint  = "upload.endpoint"
	KeyUploadBucket    = "upload.bucket"
	KeyUploadAccessKey = "upload.access_key"
	KeyUploadSecretKey = "upload.secret_key"
	KeyUploadRegion    = "upload.region"
	KeyUploadSSL       = "upload.use_ssl"
)

var knownKeys = map[string]valueKind{
	KeyEnvironment:    kindString,
	KeyBaseURL:        kindString,
	KeyLoginURL:       kindString,
	KeyEmail:          kindString,
	KeyPassword:       kindString,
	KeyBrowser:        kindString,
	KeyBrowserVersion: kindString,
	KeyHeadless:       kindBool,
	KeyIncognito:      kindBool,
	KeyMaximize:       kindBool,

	KeyRemoteEnabled: kindBool,
	KeyRemoteURL:     kindString,

	KeyCloudEnabled:   kindBool,
	KeyCloudURL:       kindString,
	KeyCloudUsername:  kindString,
	KeyCloudAccessKey: kindString,
	KeyCloudBuild:     kindString,
	KeyCloudPlatform:  kindString,

	KeyLocalDriver:     kindString,
	KeyChromeDriver:    kindString,
	KeyGeckoDriver:     kindString,
	KeyLocalPort:       kindInt,
	KeyGridVNC:         kindBool,
	KeyGridVideo:       kindBool,
	KeyGridResolution:  kindString,
	KeyGridSessionTime: kindDuration,

	KeySessionOpenTimeout: kindDuration,
	KeyPageLoadTimeout:    kindDuration,
	KeyShortWait:          kindDuration,
	KeyMediumWait:         kindDuration,
	KeyLongWait:           kindDuration,

	KeyArtifactsDir: kindString,
	KeyLogsDir:      kindString,
	KeyLogLevel:     kindString,

	KeyUploadEnabled:   kindBool,
	KeyUploadEndpoint:  kindString,
	KeyUploadBucket:    kindString,
	KeyUploadAccessKey: kindString,
	KeyUploadSecretKey: kindString,
	KeyUploadRegion:    kindString,
	KeyUploadSSL:       kindBool,
}

// envAliases maps legacy variable names onto configuration keys. The
// canonical UITEST_* name wins when both are set.
var envAliases = map[string]string{
	"TEST_ENV":         KeyEnvironment,
	"SAUCE_USERNAME":   KeyCloudUsername,
	"SAUCE_ACCESS_KEY": KeyCloudAccessKey,
}

// EnvPrefix prefixes every process environment variable read by the resolver.
const EnvPrefix = "UITEST_"

// EnvVar returns the process environment variable that overrides key,
// e.g. remote.remote_url -> UITEST_REMOTE_REMOTE_URL.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// IsKnownKey reports whether key is a recognised configuration key.
func IsKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// Keys returns every recognised configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
