package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
)

var donorsCmd = &cobra.Command{
	Use:   "donors <campaign-id>",
	Short: "Show the donor list of a campaign in ledger order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withLedger(func(ctx context.Context, g ledger.Gateway) error {
			donations, err := g.GetDonors(ctx, id)
			if err != nil {
				return err
			}
			total := decimal.Zero
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REF\tDONOR\tAMOUNT")
			for _, d := range donations {
				total = total.Add(d.Amount)
				fmt.Fprintf(w, "%s\t%s\t%s\n", campaign.LedgerRef(id, d.Index), d.Donor, d.Amount)
			}
			fmt.Fprintf(w, "\t%d pledges\t%s\n", len(donations), total)
			return w.Flush()
		})
	},
}

func parseID(s string) (campaign.ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid campaign id %q", s)
	}
	return campaign.ID(n), nil
}

func init() {
	rootCmd.AddCommand(donorsCmd)
}
