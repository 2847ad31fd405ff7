package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInvariantsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "invariants",
		Short: "List the registered invariants and their configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tVERSION\tENABLED\tSEVERITY\tSCOPE\tSAMPLING")
			for _, inv := range rt.registry.All() {
				meta := inv.Metadata()
				cfg := inv.Config()
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%.2f\n",
					meta.ID, meta.Category, meta.Version,
					cfg.Enabled, cfg.Severity, cfg.Scope, cfg.SamplingRate)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	return cmd
}
