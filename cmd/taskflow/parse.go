package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"taskflow/internal/config"
	"taskflow/internal/credential"
	"taskflow/internal/parser"

	"github.com/spf13/cobra"
)

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [text]",
		Short: "Разобрать свободный текст в черновик задачи",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("загрузка конфига: %w", err)
			}

			var keys parser.KeySource
			if store, err := credential.Open(cfg.Parser.KeyringDir); err == nil {
				keys = store
			}
			p := parser.New(parser.Config{
				BaseURL: cfg.Parser.BaseURL,
				Model:   cfg.Parser.Model,
				APIKey:  cfg.Parser.APIKey,
				Timeout: cfg.Parser.Timeout,
			}, keys)

			draft := p.Parse(cmd.Context(), strings.Join(args, " "))
			out, err := json.MarshalIndent(draft, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
