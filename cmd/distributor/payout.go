package main

import (
	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/Viewly/token-contracts/internal/task"
	"github.com/spf13/cobra"
)

func payoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payout <store>",
		Short: "Submit one mint transaction per unsubmitted ledger record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidatePayout(); err != nil {
				return err
			}
			dbCfg, err := storeConfig(cfg, args[0])
			if err != nil {
				return err
			}

			repo, err := repository.Open(dbCfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			contract, err := chain.NewContract("payout", cfg.Payout.ContractAddress, cfg.Payout.ABIPath)
			if err != nil {
				return err
			}

			manager, err := chain.NewManager(cmd.Context(), cfg.Chain)
			if err != nil {
				return err
			}
			defer manager.Close()

			from, err := manager.Authorize(cfg.Operator)
			if err != nil {
				return err
			}

			job := task.NewPayoutJob(repo, manager.Client(), contract, task.PayoutOptions{
				Method:   cfg.Payout.Method,
				Decimals: cfg.Payout.Decimals,
				GasLimit: cfg.Payout.GasLimit,
				From:     from,
			}, nil)

			summary, runErr := job.Run(cmd.Context())
			if err := printSummary(cmd.OutOrStdout(), summary, manager.Network()); err != nil {
				return err
			}
			return runErr
		},
	}
	addChainFlags(cmd)
	addPayoutFlags(cmd)
	return cmd
}

// addPayoutFlags 铸币合约与运营账户参数
func addPayoutFlags(cmd *cobra.Command) {
	cmd.Flags().String("owner", "", "operator account address")
	cmd.Flags().String("keystore", "", "keystore directory holding the operator account")
	cmd.Flags().String("contract-address", "", "distribution contract address")
	cmd.Flags().String("abi-path", "", "path to the distribution contract ABI")
	cmd.Flags().String("method", "", "mint method taking (recipient, tokens, bucket)")
	cmd.Flags().Int32("decimals", 18, "token decimals")
	cmd.Flags().Uint64("gas-limit", 0, "gas limit per transaction, 0 to estimate")
}
