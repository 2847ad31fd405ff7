package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/llm-reliability/internal/alerting"
)

func newDriftCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "drift <application>",
		Short: "Run one drift comparison for an application and print the metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application := args[0]
			rt, err := newRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := context.Background()
			metrics, err := rt.detector.DetectDrift(ctx, application, nil, nil)
			if err != nil {
				return err
			}
			if len(metrics) == 0 {
				fmt.Println("Not enough captures in the comparison windows.")
				return nil
			}
			if err := rt.store.SaveMetrics(ctx, application, metrics); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "METRIC\tTYPE\tVALUE\tTHRESHOLD\tSEVERITY")
			for _, m := range metrics {
				fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%s\n",
					m.MetricName, m.Type, m.Value, m.Threshold, m.Severity)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if alert, ok := alerting.BuildAlert(application, metrics); ok {
				if err := rt.store.SaveAlert(ctx, alert); err != nil {
					return err
				}
				if err := rt.publisher.Publish(ctx, alert); err != nil {
					return err
				}
				fmt.Printf("\n%s\n", alert.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	return cmd
}
