package harness

import (
	"flag"

	"github.com/entrhq/uitest/pkg/config"
)

// FlagConfig names the env file flag. It selects a source rather than a
// value, so it has no configuration key.
const FlagConfig = "uitest.config"

// flagKeys maps each value flag onto the configuration key it sets.
var flagKeys = map[string]string{
	"uitest.env":             config.KeyEnvironment,
	"uitest.browser":         config.KeyBrowser,
	"uitest.browser_version": config.KeyBrowserVersion,
	"uitest.remote":          config.KeyRemoteEnabled,
	"uitest.cloud":           config.KeyCloudEnabled,
	"uitest.headless":        config.KeyHeadless,
}

// Flags are the command line parameters of a test binary.
type Flags struct {
	fs         *flag.FlagSet
	ConfigFile string
}

// RegisterFlags registers the -uitest.* flags on fs. Pass flag.CommandLine
// from TestMain before flag.Parse.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}

	fs.StringVar(&f.ConfigFile, FlagConfig, "", "Path to the env file (default $UITEST_CONFIG or configs/config.yaml)")
	fs.String("uitest.env", "", "Target environment: qa, uat or prod")
	fs.String("uitest.browser", "", "Browser: chrome or firefox")
	fs.String("uitest.browser_version", "", "Browser version, or latest")
	fs.Bool("uitest.remote", false, "Run on the remote grid")
	fs.Bool("uitest.cloud", false, "Run on the cloud provider")
	fs.Bool("uitest.headless", false, "Run the browser headless")

	return f
}

// Params returns only the flags that were set on the command line. Unset
// flags never override lower layers.
func (f *Flags) Params() config.Params {
	params := config.Params{}
	if f == nil || f.fs == nil {
		return params
	}
	f.fs.Visit(func(fl *flag.Flag) {
		if key, ok := flagKeys[fl.Name]; ok {
			params[key] = fl.Value.String()
		}
	})
	return params
}
