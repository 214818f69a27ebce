package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vishesh2305/DAAN/internal/service/ledger"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns on the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, g ledger.Gateway) error {
			all, err := g.ListCampaigns(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOWNER\tTITLE\tTARGET\tCOLLECTED\tDEADLINE\tSTATE")
			for _, s := range all {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Owner, s.Title, s.Target, s.AmountCollected,
					s.Deadline.UTC().Format(time.RFC3339), snapshotState(s, now))
			}
			return w.Flush()
		})
	},
}

func snapshotState(s ledger.Snapshot, now time.Time) string {
	switch {
	case s.Claimed:
		return "claimed"
	case now.After(s.Deadline):
		return "expired"
	default:
		return "active"
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
