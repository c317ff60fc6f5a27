package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tokenauth",
		Short:         "Issue and verify JWT access tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			log.Logger = newLogger(cfg.LogLevel)
			return nil
		},
	}
	registerConfigFlags(root.PersistentFlags())
	root.AddCommand(newIssueCommand(), newVerifyCommand())
	return root
}
