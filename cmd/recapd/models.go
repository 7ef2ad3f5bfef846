package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/recapd-ai/recapd/pkg/selector"
)

func newModelsCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		tokens     int
		task       string
		maxPrice   float64
	)

	cmd := &cobra.Command{
		Use:   "models [id]",
		Short: "Recommend a model for the given workload, or show one model's details",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				m, err := a.service.ModelDetail(cmd.Context(), userID, args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "id\t%s\n", m.ID)
				fmt.Fprintf(w, "name\t%s\n", m.Name)
				fmt.Fprintf(w, "context\t%d\n", m.ContextLength)
				fmt.Fprintf(w, "prompt price\t$%.8f\n", m.Pricing.Prompt)
				fmt.Fprintf(w, "completion price\t$%.8f\n", m.Pricing.Completion)
				if m.Architecture.Modality != "" {
					fmt.Fprintf(w, "modality\t%s\n", m.Architecture.Modality)
				}
				return w.Flush()
			}

			rec, err := a.service.Recommend(cmd.Context(), userID, selector.Criteria{
				ContentTokens:  tokens,
				Task:           task,
				MaxPromptPrice: maxPrice,
			})
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Println("no recommendation available, catalog unreachable")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "recommended\t%s\tscore=%d\n", rec.Model.ID, rec.Score)
			for _, fb := range rec.FallbackModels {
				fmt.Fprintf(w, "fallback\t%s\t\n", fb)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	cmd.Flags().IntVar(&tokens, "tokens", 0, "estimated content tokens")
	cmd.Flags().StringVar(&task, "task", "summarization", "task type")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum prompt price per token")
	return cmd
}
