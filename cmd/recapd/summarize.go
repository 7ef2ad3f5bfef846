package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recapd-ai/recapd/pkg/models"
)

func newSummarizeCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		model      string
		length     string
		style      string
		strategy   string
		keyPoints  bool
		sentiment  bool
		language   string
		stream     bool
	)

	cmd := &cobra.Command{
		Use:   "summarize [files...]",
		Short: "Summarize one or more article files, or stdin with -",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var articles []models.Article
			for _, path := range args {
				if path == "-" {
					data, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
					articles = append(articles, models.Article{ID: "stdin", Content: string(data)})
					continue
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read article: %w", err)
				}
				articles = append(articles, models.Article{
					ID:      filepath.Base(path),
					Content: string(data),
				})
			}

			req := models.SummaryRequest{
				UserID:   userID,
				Articles: articles,
				Model:    model,
				Strategy: models.Strategy(strategy),
				Options: models.SummaryOptions{
					Length:           models.SummaryLength(length),
					Style:            models.SummaryStyle(style),
					ExtractKeyPoints: keyPoints,
					AnalyzeSentiment: sentiment,
					Language:         language,
				},
			}

			var resp *models.SummaryResponse
			if stream {
				resp, err = a.service.SummarizeStream(cmd.Context(), req, func(articleID, delta string) {
					fmt.Fprint(cmd.OutOrStdout(), delta)
				})
				fmt.Fprintln(cmd.OutOrStdout())
			} else {
				resp, err = a.service.Summarize(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().StringVar(&length, "length", "", "summary length (short|medium|long)")
	cmd.Flags().StringVar(&style, "style", "", "summary style (bullet_points|structured|paragraph)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "processing strategy (sequential|batched)")
	cmd.Flags().BoolVar(&keyPoints, "key-points", false, "extract key points")
	cmd.Flags().BoolVar(&sentiment, "sentiment", false, "analyze sentiment")
	cmd.Flags().StringVar(&language, "language", "", "output language")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream summary text as it is generated")
	return cmd
}
