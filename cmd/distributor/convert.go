package main

import (
	"fmt"
	"os"

	"github.com/Viewly/token-contracts/internal/sheet"
	"github.com/spf13/cobra"
)

func convertCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "convert <payout-sheet.csv> <address-book.csv>",
		Short: "Merge a payout sheet with an address book into an importable JSON sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			n, err := sheet.Convert(args[0], args[1], w)
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, defaults to stdout")
	return cmd
}
