package main

import (
	"errors"
	"fmt"
	"taskflow/internal/config"
	"taskflow/internal/repository/postgres"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции схемы PostgreSQL",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			if err := postgres.Migrate(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Миграции применены")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Откатить все миграции",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			if err := postgres.Down(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Миграции откачены")
			return nil
		},
	})
	return cmd
}

func databaseURL() (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", fmt.Errorf("загрузка конфига: %w", err)
	}
	if cfg.Database.URL == "" {
		return "", errors.New("database.url не задан (TASKFLOW_DATABASE_URL)")
	}
	return cfg.Database.URL, nil
}
