package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vishesh2305/DAAN/internal/service/ledger"
)

var claimStatusCmd = &cobra.Command{
	Use:   "claim-status <campaign-id>",
	Short: "Check whether a campaign can be claimed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		caller, _ := cmd.Flags().GetString("caller")
		return withLedger(func(ctx context.Context, g ledger.Gateway) error {
			s, err := g.GetCampaign(ctx, id)
			if err != nil {
				return err
			}
			fmt.Println(claimStatus(s, caller, time.Now()))
			return nil
		})
	},
}

// claimStatus applies the claim checks in order: owner, expiry, claimed.
func claimStatus(s ledger.Snapshot, caller string, now time.Time) string {
	switch {
	case caller != "" && !strings.EqualFold(caller, s.Owner):
		return fmt.Sprintf("campaign %d: %s is not the owner (%s)", s.ID, caller, s.Owner)
	case !now.After(s.Deadline):
		return fmt.Sprintf("campaign %d: not expired, deadline in %s", s.ID, s.Deadline.Sub(now).Round(time.Second))
	case s.Claimed:
		return fmt.Sprintf("campaign %d: already claimed", s.ID)
	default:
		return fmt.Sprintf("campaign %d: claimable by %s, %s ETH collected", s.ID, s.Owner, s.AmountCollected)
	}
}

func init() {
	rootCmd.AddCommand(claimStatusCmd)
	claimStatusCmd.Flags().String("caller", "", "account that would submit the claim")
}
