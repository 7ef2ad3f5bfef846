package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recapd-ai/recapd/pkg/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-user settings",
	}
	cmd.AddCommand(newSettingsShowCmd(), newSettingsSetCmd(), newSettingsInitCmd())
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show settings for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.store.GetSettings(cmd.Context(), userID)
			if errors.Is(err, settings.ErrNotFound) {
				fmt.Printf("no settings for user %s, run 'recapd settings init'\n", userID)
				return nil
			}
			if err != nil {
				return err
			}

			// Never print the stored key.
			if st.APIKey != "" {
				st.APIKey = "(set)"
			}
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	return cmd
}

func newSettingsSetCmd() *cobra.Command {
	var (
		configPath   string
		userID       string
		apiKey       string
		defaultModel string
		maxCost      float64
		dailyLimit   float64
		monthlyLimit float64
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update settings for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.store.GetSettings(cmd.Context(), userID)
			if errors.Is(err, settings.ErrNotFound) {
				st, err = a.store.CreateDefaultSettings(cmd.Context(), userID)
			}
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("api-key") {
				st.APIKey = apiKey
			}
			if cmd.Flags().Changed("model") {
				st.DefaultModel = defaultModel
			}
			if cmd.Flags().Changed("max-cost") {
				st.MaxCostPerRequest = maxCost
			}
			if cmd.Flags().Changed("daily-limit") {
				st.DailyCostLimit = dailyLimit
			}
			if cmd.Flags().Changed("monthly-limit") {
				st.MonthlyCostLimit = monthlyLimit
			}

			if err := a.store.SaveSettings(cmd.Context(), *st); err != nil {
				return err
			}
			fmt.Printf("settings updated for user %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "OpenRouter API key")
	cmd.Flags().StringVar(&defaultModel, "model", "", "default model")
	cmd.Flags().Float64Var(&maxCost, "max-cost", 0, "max cost per request in USD")
	cmd.Flags().Float64Var(&dailyLimit, "daily-limit", 0, "daily cost limit in USD")
	cmd.Flags().Float64Var(&monthlyLimit, "monthly-limit", 0, "monthly cost limit in USD")
	return cmd
}

func newSettingsInitCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default settings for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.store.CreateDefaultSettings(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Printf("created settings for user %s (model %s)\n", st.UserID, st.DefaultModel)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	return cmd
}
