// Package reconciler runs the scheduled jobs that bring local state back in
// line with the ledger.
package reconciler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/lifecycle"
	"github.com/vishesh2305/DAAN/internal/service/observer"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

// Locker keeps a job to one instance at a time. *lock.RedisLock implements it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type PendingResolver interface {
	ResolvePending(ctx context.Context) (lifecycle.PendingReport, error)
}

const lockKey = "cron:lock:reconcile"

type CronService struct {
	cron     *cron.Cron
	spec     string
	locker   Locker
	lockTTL  time.Duration
	pending  PendingResolver
	syncer   observer.DonorSyncer
	store    store.Store
	now      func() time.Time
	jobLimit time.Duration
}

// NewCronService schedules reconciliation on spec (robfig syntax, e.g. "@every 1m").
// locker may be nil when a single instance runs.
func NewCronService(spec string, locker Locker, pending PendingResolver, syncer observer.DonorSyncer, s store.Store) *CronService {
	if spec == "" {
		spec = "@every 1m"
	}
	return &CronService{
		cron:     cron.New(),
		spec:     spec,
		locker:   locker,
		lockTTL:  50 * time.Second,
		pending:  pending,
		syncer:   syncer,
		store:    s,
		now:      time.Now,
		jobLimit: 45 * time.Second,
	}
}

func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Reconcile); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("Cron Service started", zap.String("spec", s.spec))
	return nil
}

// Stop waits for a running job to finish.
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron Service stopped")
}

// Reconcile is the scheduled entry point.
func (s *CronService) Reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobLimit)
	defer cancel()

	if s.locker != nil {
		locked, err := s.locker.Acquire(ctx, lockKey, s.lockTTL)
		if err != nil || !locked {
			logger.Debug("reconcile: lock held by another instance", zap.Error(err))
			return
		}
		defer s.locker.Release(context.Background(), lockKey)
	}

	sum := s.RunOnce(ctx)
	if sum.Pending.Abandoned > 0 {
		logger.Warn("reconcile: pending creations abandoned by age, outcome on the ledger still unknown",
			zap.Int("abandoned", sum.Pending.Abandoned))
	}
	logger.Info("reconcile finished",
		zap.Int("pending_resolved", sum.Pending.Resolved),
		zap.Int("pending_abandoned", sum.Pending.Abandoned),
		zap.Int("pending_open", sum.Pending.Open),
		zap.Int("campaigns_synced", sum.Synced),
		zap.Int("pledges_added", sum.PledgesAdded),
		zap.Int("inconsistent", sum.Inconsistent),
		zap.Int("expired_unclaimed", len(sum.ExpiredUnclaimed)))
}

// Summary describes one reconciliation pass.
type Summary struct {
	Pending          lifecycle.PendingReport
	Synced           int
	PledgesAdded     int
	Inconsistent     int
	ExpiredUnclaimed []campaign.ID
}

// RunOnce resolves pending creations, syncs donor lists of every unclaimed
// campaign (expired ones included, so late confirmations are counted) and
// reports campaigns past their deadline that were never claimed.
// Failures of one step are logged and do not stop the others.
func (s *CronService) RunOnce(ctx context.Context) Summary {
	var sum Summary
	now := s.now()

	if rep, err := s.pending.ResolvePending(ctx); err != nil {
		logger.Warn("reconcile: pending resolution failed", zap.Error(err))
	} else {
		sum.Pending = rep
	}

	ids, err := observer.UnclaimedCampaigns(ctx, s.store)
	if err != nil {
		logger.Warn("reconcile: list unclaimed campaigns failed", zap.Error(err))
	}
	for _, id := range ids {
		rep, err := s.syncer.Reconcile(ctx, id)
		if err != nil {
			logger.Warn("reconcile: donor sync failed", zap.Uint64("campaign_id", uint64(id)), zap.Error(err))
			continue
		}
		sum.Synced++
		sum.PledgesAdded += rep.Added
		if !rep.Consistent {
			sum.Inconsistent++
		}
	}

	expired, err := s.store.ListExpiredUnclaimed(ctx, now)
	if err != nil {
		logger.Warn("reconcile: expired scan failed", zap.Error(err))
		return sum
	}
	for _, c := range expired {
		sum.ExpiredUnclaimed = append(sum.ExpiredUnclaimed, c.ID)
		logger.Info("campaign expired and unclaimed",
			zap.Uint64("campaign_id", uint64(c.ID)),
			zap.String("owner", c.Owner),
			zap.String("amount_collected", c.AmountCollected.String()),
			zap.Time("deadline", c.Deadline))
	}
	return sum
}
