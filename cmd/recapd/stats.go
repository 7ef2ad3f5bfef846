package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		window     string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.service.UsageStats(cmd.Context(), userID, window)
			if err != nil {
				return err
			}

			fmt.Printf("window: %s (since %s)\n", stats.Window, stats.Since.Format("2006-01-02"))
			fmt.Printf("requests: %d  tokens: %d  cost: $%.6f\n\n",
				stats.TotalRequests, stats.TotalTokens, stats.TotalCost)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tREQUESTS\tTOKENS\tCOST")
			for model, u := range stats.ByModel {
				fmt.Fprintf(w, "%s\t%d\t%d\t$%.6f\n", model, u.Requests, u.TotalTokens, u.Cost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	cmd.Flags().StringVarP(&window, "window", "w", "daily", "aggregation window (daily|weekly|monthly)")
	return cmd
}
