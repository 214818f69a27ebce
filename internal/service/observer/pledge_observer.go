package observer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/accumulator"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

// DonorSyncer replays a campaign's ledger donor list into the local record.
// *accumulator.Accumulator implements it.
type DonorSyncer interface {
	Reconcile(ctx context.Context, id campaign.ID) (accumulator.Report, error)
}

// PledgeObserver watches the ledger for new donations to unclaimed campaigns.
// Expired campaigns stay watched until claimed: a pledge sent before the
// deadline may confirm after it.
//
//  1. Fetcher: one goroutine, lists unclaimed campaigns on every tick
//  2. Worker pool: syncs the donor list of each campaign in parallel
type PledgeObserver struct {
	store  store.Store
	syncer DonorSyncer
	wg     sync.WaitGroup

	interval    time.Duration
	workerCount int
	now         func() time.Time

	// Fetcher -> jobs -> Workers
	jobs chan campaign.ID

	mu       sync.Mutex
	lastSync time.Time
	synced   uint64
}

func NewPledgeObserver(s store.Store, syncer DonorSyncer, interval time.Duration, workerCount int) *PledgeObserver {
	if workerCount <= 0 {
		workerCount = 4
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PledgeObserver{
		store:       s,
		syncer:      syncer,
		interval:    interval,
		workerCount: workerCount,
		now:         time.Now,
		jobs:        make(chan campaign.ID, workerCount*2),
	}
}

// Start launches the fetcher and workers. They exit when ctx is done; Wait blocks until they have.
func (o *PledgeObserver) Start(ctx context.Context) {
	logger.Info("pledge observer started",
		zap.Duration("interval", o.interval), zap.Int("workers", o.workerCount))

	for i := 0; i < o.workerCount; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	o.wg.Add(1)
	go o.fetcher(ctx)
}

func (o *PledgeObserver) Wait() {
	o.wg.Wait()
}

// Synced reports how many campaign syncs completed and when the last one did.
func (o *PledgeObserver) Synced() (uint64, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.synced, o.lastSync
}

func (o *PledgeObserver) fetcher(ctx context.Context) {
	defer o.wg.Done()
	// workers stop once the queue is closed
	defer close(o.jobs)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if !o.enqueueUnclaimed(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("pledge observer stopping")
			return
		case <-ticker.C:
		}
	}
}

// enqueueUnclaimed pushes every unclaimed campaign to the workers. A full queue
// blocks the fetcher until workers catch up.
func (o *PledgeObserver) enqueueUnclaimed(ctx context.Context) bool {
	ids, err := UnclaimedCampaigns(ctx, o.store)
	if err != nil {
		logger.Warn("observer: list campaigns failed", zap.Error(err))
		return ctx.Err() == nil
	}
	for _, id := range ids {
		select {
		case o.jobs <- id:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (o *PledgeObserver) worker(ctx context.Context, n int) {
	defer o.wg.Done()

	for id := range o.jobs {
		rep, err := o.syncer.Reconcile(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("observer: donor sync failed",
					zap.Int("worker", n), zap.Uint64("campaign_id", uint64(id)), zap.Error(err))
			}
			continue
		}
		if rep.Added > 0 {
			logger.Info("observer: new pledges",
				zap.Uint64("campaign_id", uint64(id)), zap.Int("added", rep.Added))
		}
		o.mu.Lock()
		o.synced++
		o.lastSync = o.now()
		o.mu.Unlock()
	}
}

// UnclaimedCampaigns lists campaigns whose donor list can still change
// locally: Active ones and expired ones not yet claimed.
func UnclaimedCampaigns(ctx context.Context, s store.Store) ([]campaign.ID, error) {
	all, err := s.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	var ids []campaign.ID
	for _, c := range all {
		if !c.Claimed {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}
