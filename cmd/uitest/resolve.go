package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/endpoint"
)

func newResolveCmd(root *rootOptions) *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved run configuration",
		Long: `Resolve the configuration exactly as a test worker would and print it
with credentials masked. Exits with code 3 when the configuration is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(root.sources(cmd))
			if err != nil {
				return err
			}
			spec, err := capability.FromConfig(cfg)
			if err != nil {
				return err
			}
			ep, err := endpoint.FromConfig(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showSources {
				for _, s := range cfg.Describe() {
					fmt.Fprintf(out, "%-28s %-40s %s\n", s.Key, s.Value, s.Source)
				}
			} else {
				data, err := cfg.MaskedYAML()
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(data))
			}

			fmt.Fprintf(out, "\n%s %s\n", labelStyle.Render("browser: "), spec)
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("endpoint:"), ep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "Show which layer each value came from")
	return cmd
}
