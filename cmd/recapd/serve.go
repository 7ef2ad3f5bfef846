package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the summarization service with periodic sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.Start(); err != nil {
				return fmt.Errorf("start service: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("recapd serving (db: %s, api: %s)", a.cfg.DBPath, a.cfg.API.BaseURL)
			<-ctx.Done()
			log.Printf("recapd shutting down")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recapd.yaml", "path to config file")
	return cmd
}
