package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version    = "dev"
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Taskflow - задачи, учёт времени и фокус-сессии",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "путь к YAML-конфигу")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(keyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
