package main

import (
	"fmt"
	"taskflow/internal/config"
	"taskflow/internal/credential"

	"github.com/spf13/cobra"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Ключ API парсера в системном keyring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set [value]",
		Short: "Сохранить ключ",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeyring()
			if err != nil {
				return err
			}
			if err := store.Set(credential.ParserKey, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ключ сохранён")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Удалить ключ",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeyring()
			if err != nil {
				return err
			}
			if err := store.Delete(credential.ParserKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ключ удалён")
			return nil
		},
	})
	return cmd
}

func openKeyring() (*credential.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}
	return credential.Open(cfg.Parser.KeyringDir)
}
