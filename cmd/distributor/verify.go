package main

import (
	"os"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/prompt"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/Viewly/token-contracts/internal/task"
	"github.com/spf13/cobra"
)

func verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <store>",
		Short: "Check receipts of submitted transactions and confirm or reset records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateChain(); err != nil {
				return err
			}
			dbCfg, err := storeConfig(cfg, args[0])
			if err != nil {
				return err
			}

			confirmer, err := prompt.FromPolicy(cfg.Verify.RetryPolicy, os.Stdin, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			repo, err := repository.Open(dbCfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			manager, err := chain.NewManager(cmd.Context(), cfg.Chain)
			if err != nil {
				return err
			}
			defer manager.Close()

			job := task.NewVerifyJob(repo, manager.Client(), confirmer, cfg.Chain.Confirmations, nil)
			summary, runErr := job.Run(cmd.Context())
			if err := printSummary(cmd.OutOrStdout(), summary, manager.Network()); err != nil {
				return err
			}
			return runErr
		},
	}
	addChainFlags(cmd)
	cmd.Flags().String("retry-policy", "", "what to do with failed transactions: ask, approve, deny")
	return cmd
}
