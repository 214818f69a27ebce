package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vishesh2305/DAAN/internal/bootstrap"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/pkg/config"
)

var timeout time.Duration

// rootCmd inspects campaigns directly on the ledger, bypassing the service.
var rootCmd = &cobra.Command{
	Use:   "daan-cli",
	Short: "DAAN operator tool",
	Long: `Read-only operator commands against the CrowdFunding contract:
list campaigns, show donors and check whether a campaign can be claimed.
The ledger is selected by config.yaml (ledger.mode, ledger.rpc_url).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for ledger reads")
}

// withLedger opens the configured ledger for one command.
func withLedger(fn func(ctx context.Context, g ledger.Gateway) error) error {
	config.Init()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, closeFn, err := bootstrap.OpenLedger(ctx, config.Global.Ledger)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, g)
}
