package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/entrhq/uitest/pkg/config"
)

// rootOptions are the persistent flags shared by every subcommand. They
// form the CLI layer of the configuration.
type rootOptions struct {
	configFile     string
	env            string
	browser        string
	browserVersion string
	remote         bool
	cloud          bool
	headless       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "uitest",
		Short: "Run browser UI tests against local, grid or cloud browsers",
		Long: `uitest resolves which browser, environment and execution endpoint a
test run uses from packaged defaults, the env file, the process environment
and these flags, then runs the Go test packages in parallel workers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(`{{printf "uitest version %s\n" .Version}}`)

	opts.register(cmd)

	cmd.AddCommand(newResolveCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// register adds the flags to cmd as persistent flags.
func (o *rootOptions) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "Env file (default $UITEST_CONFIG or configs/config.yaml)")
	flags.StringVar(&o.env, "env", "", "Target environment: qa, uat or prod")
	flags.StringVar(&o.browser, "browser", "", "Browser: chrome or firefox")
	flags.StringVar(&o.browserVersion, "browser-version", "", "Browser version, or latest")
	flags.BoolVar(&o.remote, "remote", false, "Run on the remote grid")
	flags.BoolVar(&o.cloud, "cloud", false, "Run on the cloud provider")
	flags.BoolVar(&o.cloud, "saucelabs", false, "Alias for --cloud")
	flags.BoolVar(&o.headless, "headless", false, "Run the browser headless")
	_ = flags.MarkHidden("saucelabs")
}

// params returns the configuration keys of the flags the user set. Flags
// left at their defaults never override lower layers.
func (o *rootOptions) params(cmd *cobra.Command) config.Params {
	p := config.Params{}
	flags := cmd.Flags()

	if flags.Changed("env") {
		p[config.KeyEnvironment] = o.env
	}
	if flags.Changed("browser") {
		p[config.KeyBrowser] = o.browser
	}
	if flags.Changed("browser-version") {
		p[config.KeyBrowserVersion] = o.browserVersion
	}
	if flags.Changed("remote") {
		p[config.KeyRemoteEnabled] = strconv.FormatBool(o.remote)
	}
	if flags.Changed("cloud") || flags.Changed("saucelabs") {
		p[config.KeyCloudEnabled] = strconv.FormatBool(o.cloud)
	}
	if flags.Changed("headless") {
		p[config.KeyHeadless] = strconv.FormatBool(o.headless)
	}
	return p
}

// sources returns the configuration sources for the flags.
func (o *rootOptions) sources(cmd *cobra.Command) config.Sources {
	src := config.DefaultSources(o.params(cmd))
	if o.configFile != "" {
		src.File = o.configFile
	}
	return src
}
