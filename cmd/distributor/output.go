package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/task"
)

// printSummary 输出每条记录的处理结果与汇总
func printSummary(w io.Writer, summary *task.Summary, network chain.Network) error {
	if summary == nil {
		return nil
	}
	if len(summary.Results) == 0 {
		_, err := fmt.Fprintf(w, "%s: no records to process\n", summary.Job)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRECIPIENT\tAMOUNT\tBUCKET\tOUTCOME\tTX")
	for _, r := range summary.Results {
		tx := network.TxURL(r.TxHash)
		if tx == "" {
			tx = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.RecordId, r.Name, r.Recipient, r.Amount, r.Bucket, r.Outcome, tx)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "record %d: %v\n", r.RecordId, r.Err)
		}
	}

	counts := summary.Counts()
	parts := make([]string, 0, len(counts))
	for outcome, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", outcome, n))
	}
	sort.Strings(parts)
	_, err := fmt.Fprintf(w, "%s run %s: %d records (%s)\n", summary.Job, summary.RunId, len(summary.Results), strings.Join(parts, ", "))
	return err
}
