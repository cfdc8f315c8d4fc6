package main

import (
	"fmt"
	"os"

	"github.com/Viewly/token-contracts/internal/logic"
	"github.com/Viewly/token-contracts/internal/prompt"
	"github.com/Viewly/token-contracts/internal/sheet"
	"github.com/spf13/cobra"
)

func importCommand() *cobra.Command {
	var (
		format string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "import <sheet> [<store>]",
		Short: "Validate a payout sheet and load it into a new ledger",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store := ""
			if len(args) == 2 {
				store = args[1]
			}
			dbCfg, err := storeConfig(cfg, store)
			if err != nil {
				return err
			}

			sheetFormat, err := sheet.ParseFormat(format)
			if err != nil {
				return err
			}

			n, err := logic.ImportSheet(cmd.Context(), logic.ImportOptions{
				SheetPath: args[0],
				Format:    sheetFormat,
				Store:     dbCfg,
				Force:     force,
				Confirmer: prompt.NewConsole(os.Stdin, os.Stdout),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "auto", "sheet format: auto, csv, tsv, json")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing ledger without asking")
	cmd.Flags().String("driver", "", "ledger database driver: sqlite, postgres, mysql")
	return cmd
}
