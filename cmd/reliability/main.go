package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "reliability",
		Short:   "LLM reliability platform: invariant validation and drift detection",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newDriftCmd(),
		newValidateCmd(),
		newInvariantsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
