package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recapd-ai/recapd/pkg/models"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage batch summarization jobs",
	}
	cmd.AddCommand(newJobsSubmitCmd(), newJobsStatusCmd(), newJobsCancelCmd())
	return cmd
}

func newJobsSubmitCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		strategy   string
	)

	cmd := &cobra.Command{
		Use:   "submit [files...]",
		Short: "Submit a batch summarization job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var articles []models.Article
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read article: %w", err)
				}
				articles = append(articles, models.Article{
					ID:      filepath.Base(path),
					Content: string(data),
				})
			}

			job, err := a.service.Jobs.Create(cmd.Context(), models.SummaryRequest{
				UserID:   userID,
				Articles: articles,
				Strategy: models.Strategy(strategy),
			})
			if err != nil {
				return err
			}
			fmt.Printf("job %s submitted, %d articles, estimated cost $%.6f\n",
				job.ID, len(articles), job.EstimatedCost)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	cmd.Flags().StringVar(&strategy, "strategy", "batched", "processing strategy (sequential|batched)")
	return cmd
}

func newJobsStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show job status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.service.Jobs.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.Jobs.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s cancelled\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	return cmd
}
