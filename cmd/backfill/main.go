package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/bootstrap"
	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/accumulator"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/config"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

// Environment is what a command may write to.
type Environment struct {
	Stdout io.Writer
}

type CLI struct {
	Campaigns []uint64      `name:"campaign" help:"campaign ids to backfill; all ledger campaigns when empty."`
	DryRun    bool          `help:"report what would be recorded without writing."`
	Timeout   time.Duration `default:"10m" help:"overall deadline."`
}

func (c *CLI) Run(env *Environment, g ledger.Gateway, s store.Store) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := Backfill(ctx, g, s, c.Campaigns, c.DryRun)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "campaigns: %d activated, %d synced; pledges added: %d; inconsistent: %d\n",
		res.Activated, res.Synced, res.PledgesAdded, res.Inconsistent)
	return nil
}

// Result summarizes one backfill run.
type Result struct {
	Activated    int
	Synced       int
	PledgesAdded int
	Inconsistent int
}

// Backfill records ledger campaigns missing from the store and replays their donor lists.
func Backfill(ctx context.Context, g ledger.Gateway, s store.Store, ids []uint64, dryRun bool) (Result, error) {
	var res Result

	snaps, err := selectCampaigns(ctx, g, ids)
	if err != nil {
		return res, err
	}
	acc := accumulator.New(s, g, nil)

	for _, snap := range snaps {
		if _, err := s.GetCampaign(ctx, snap.ID); err != nil {
			if !errors.Is(err, errno.ErrCampaignNotFound) {
				return res, fmt.Errorf("look up campaign %d: %w", snap.ID, err)
			}
			if dryRun {
				res.Activated++
				continue
			}
			if err := s.Activate(ctx, &campaign.Campaign{
				ID:          snap.ID,
				Owner:       snap.Owner,
				Title:       snap.Title,
				Description: snap.Description,
				Target:      snap.Target,
				Deadline:    snap.Deadline,
				Image:       snap.Image,
				CreatedAt:   time.Now(),
			}); err != nil {
				return res, fmt.Errorf("activate campaign %d: %w", snap.ID, err)
			}
			res.Activated++
		}
		if dryRun {
			continue
		}

		rep, err := acc.Reconcile(ctx, snap.ID)
		if err != nil {
			return res, err
		}
		if snap.Claimed {
			err := s.MarkClaimed(ctx, campaign.Receipt{CampaignID: snap.ID, Amount: snap.AmountCollected, ClaimedBy: snap.Owner, ClaimedAt: time.Now()})
			if err != nil && !errors.Is(err, errno.ErrAlreadyClaimed) {
				return res, fmt.Errorf("record claim of campaign %d: %w", snap.ID, err)
			}
		}
		res.Synced++
		res.PledgesAdded += rep.Added
		if !rep.Consistent {
			res.Inconsistent++
		}
	}
	return res, nil
}

func selectCampaigns(ctx context.Context, g ledger.Gateway, ids []uint64) ([]ledger.Snapshot, error) {
	if len(ids) == 0 {
		return g.ListCampaigns(ctx)
	}
	out := make([]ledger.Snapshot, 0, len(ids))
	for _, id := range ids {
		s, err := g.GetCampaign(ctx, campaign.ID(id))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func main() {
	var app CLI
	kctx := kong.Parse(&app,
		kong.Description("Replay ledger campaigns and donor lists into the DAAN store."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	db, err := bootstrap.OpenDB(config.Global.DB)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	g, closeLedger, err := bootstrap.OpenLedger(context.Background(), config.Global.Ledger)
	if err != nil {
		logger.Fatal("ledger unavailable", zap.Error(err))
	}
	defer closeLedger()

	kctx.BindTo(g, (*ledger.Gateway)(nil))
	kctx.BindTo(store.NewGormStore(db), (*store.Store)(nil))
	err = kctx.Run(&Environment{Stdout: os.Stdout})
	kctx.FatalIfErrorf(err)
}
