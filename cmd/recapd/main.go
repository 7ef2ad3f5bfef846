package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "recapd",
		Short:   "Resilient LLM client and summarization service",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newSummarizeCmd(),
		newModelsCmd(),
		newJobsCmd(),
		newStatsCmd(),
		newSettingsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
