package capability

import (
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/entrhq/uitest/pkg/config"
)

// Vendor capability keys.
const (
	SelenoidOptionsKey = "selenoid:options"
	SauceOptionsKey    = "sauce:options"
)

// unpinnedVersions leave the choice of version to the grid.
var unpinnedVersions = map[string]bool{
	"":        true,
	"latest":  true,
	"default": true,
	"auto":    true,
}

// Options carries the run settings that shape a capability descriptor.
type Options struct {
	Headless  bool
	Incognito bool

	// TestName labels grid/cloud sessions and their recordings
	TestName string

	Grid  config.GridConfig
	Cloud config.CloudConfig
}

// OptionsFromConfig copies the relevant settings out of cfg.
func OptionsFromConfig(cfg config.RunConfiguration, testName string) Options {
	return Options{
		Headless:  cfg.Headless,
		Incognito: cfg.Incognito,
		TestName:  testName,
		Grid:      cfg.Grid,
		Cloud:     cfg.Cloud,
	}
}

// Descriptor builds the W3C capability map requested from the endpoint.
func Descriptor(spec BrowserSpec, opts Options) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": string(spec.Browser)}

	switch spec.Browser {
	case Chrome:
		caps.AddChrome(chrome.Capabilities{Args: Args(spec.Browser, opts)})
	case Firefox:
		caps.AddFirefox(firefox.Capabilities{Args: Args(spec.Browser, opts)})
	}

	switch spec.Mode {
	case config.ModeGrid:
		if !unpinnedVersions[strings.ToLower(spec.Version)] {
			caps["browserVersion"] = spec.Version
		}
		caps[SelenoidOptionsKey] = selenoidOptions(opts)
	case config.ModeCloud:
		caps["browserVersion"] = spec.Version
		if opts.Cloud.Platform != "" {
			caps["platformName"] = opts.Cloud.Platform
		}
		caps[SauceOptionsKey] = sauceOptions(opts)
	}

	return caps
}

// Args returns the browser command line switches for opts.
func Args(b Browser, opts Options) []string {
	var args []string
	if opts.Headless {
		args = append(args, "--headless")
	}
	if opts.Incognito {
		switch b {
		case Chrome:
			args = append(args, "--incognito")
		case Firefox:
			args = append(args, "-private-window")
		}
	}
	return args
}

func selenoidOptions(opts Options) map[string]any {
	o := map[string]any{
		"enableVNC":   opts.Grid.EnableVNC,
		"enableVideo": opts.Grid.EnableVideo,
	}
	if opts.Grid.ScreenResolution != "" {
		o["screenResolution"] = opts.Grid.ScreenResolution
	}
	if opts.Grid.SessionTimeout > 0 {
		o["sessionTimeout"] = opts.Grid.SessionTimeout.String()
	}
	if name := sessionLabel(opts.TestName); name != "" {
		o["name"] = name
		if opts.Grid.EnableVideo {
			o["videoName"] = name + "_video.mp4"
		}
	}
	return o
}

func sauceOptions(opts Options) map[string]any {
	o := map[string]any{
		"username":  opts.Cloud.Username,
		"accessKey": opts.Cloud.AccessKey,
	}
	if opts.Cloud.Build != "" {
		o["build"] = opts.Cloud.Build
	}
	if name := sessionLabel(opts.TestName); name != "" {
		o["name"] = name
	}
	return o
}

// sessionLabel flattens a go test name (which may contain '/') into a label
// accepted by grid recording file names.
func sessionLabel(testName string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(testName)
}
