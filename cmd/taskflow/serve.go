package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"taskflow/internal/app"
	"taskflow/internal/config"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("загрузка конфига: %w", err)
			}
			if port != "" {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg).Init(ctx)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "порт сервера (перекрывает конфиг)")
	return cmd
}
