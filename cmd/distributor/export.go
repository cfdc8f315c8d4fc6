package main

import (
	"fmt"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/logic"
	"github.com/Viewly/token-contracts/internal/report"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/spf13/cobra"
)

func exportCommand() *cobra.Command {
	var (
		format   string
		balances bool
		workers  int
		filter   logic.ListFilter
	)
	cmd := &cobra.Command{
		Use:   "export <store>",
		Short: "Print the ledger with explorer links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dbCfg, err := storeConfig(cfg, args[0])
			if err != nil {
				return err
			}
			outFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			scopes, err := filter.Scopes()
			if err != nil {
				return err
			}
			network, err := chain.ResolveNetwork(cfg.Chain)
			if err != nil {
				return err
			}

			repo, err := repository.Open(dbCfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			rows, err := report.Build(cmd.Context(), repo, network, scopes...)
			if err != nil {
				return err
			}

			if balances {
				token, err := tokenContract(cfg)
				if err != nil {
					return err
				}
				manager, err := chain.NewManager(cmd.Context(), cfg.Chain)
				if err != nil {
					return err
				}
				defer manager.Close()

				if err := report.FillBalances(cmd.Context(), manager.Client(), rows, report.BalanceOptions{
					Token:    token,
					Decimals: cfg.Payout.Decimals,
					Workers:  workers,
				}); err != nil {
					return err
				}
			}

			return report.Write(cmd.OutOrStdout(), rows, outFormat)
		},
	}
	addChainFlags(cmd)
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, csv, json")
	cmd.Flags().BoolVar(&balances, "balances", false, "include each recipient's current token balance")
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent balance lookups")
	cmd.Flags().String("token-address", "", "token contract for balance lookups")
	cmd.Flags().Int32("decimals", 18, "token decimals")
	cmd.Flags().StringVar(&filter.Status, "status", "", "only records with this status: pending, submitted, confirmed")
	cmd.Flags().StringVar(&filter.Bucket, "bucket", "", "only records in this bucket")
	return cmd
}

// tokenContract 余额查询使用的代币合约
func tokenContract(cfg *config.Config) (*chain.Contract, error) {
	if cfg.Token.Address == "" {
		return nil, fmt.Errorf("%w: token address is required for balances", config.ErrInvalidConfig)
	}
	return chain.NewERC20(cfg.Token.Address)
}
