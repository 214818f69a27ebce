// Package lifecycle sequences a campaign from draft to claim:
//
//	Draft -> Screening -> Rejected
//	                   -> LedgerSubmission -> Active -> (Expired) -> Claimed
//
// Screening may be abandoned with the caller's context. Once the ledger
// submission starts it runs to a definitive outcome on its own budget, and an
// unknown outcome is reconciled against the ledger instead of being retried blindly.
//
// The one exception: a pending creation still absent from the ledger after
// PendingAbandonAfter is marked abandoned on age alone. It is never resubmitted,
// and a campaign that lands later can only be recovered by the backfill tool.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/accumulator"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/screening"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/logger"
	"github.com/vishesh2305/DAAN/pkg/monitor"
	"github.com/vishesh2305/DAAN/pkg/utils/lock"
)

// ClaimLocker serializes claims and same-nonce creations across instances.
// *lock.RedisLock implements it.
type ClaimLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type Options struct {
	// CreateAttempts bounds ledger submissions per creation, reconciliation included.
	CreateAttempts int
	// LedgerBudget bounds the detached ledger phase of a creation or claim.
	LedgerBudget time.Duration
	// PendingAbandonAfter is how long an unresolved creation is kept open.
	PendingAbandonAfter time.Duration
	// Locks is shared with the accumulator so claims and pledges on one campaign serialize.
	Locks *lock.KeyedMutex
	// ClaimLock, when set, also serializes claims and same-nonce creations across instances.
	ClaimLock    ClaimLocker
	ClaimLockTTL time.Duration
	Now          func() time.Time
}

type Orchestrator struct {
	screener screening.Screener
	ledger   ledger.Gateway
	store    store.Store
	acc      *accumulator.Accumulator
	opts     Options
}

func New(sc screening.Screener, g ledger.Gateway, s store.Store, acc *accumulator.Accumulator, opts Options) *Orchestrator {
	if opts.CreateAttempts <= 0 {
		opts.CreateAttempts = 2
	}
	if opts.LedgerBudget <= 0 {
		opts.LedgerBudget = 5 * time.Minute
	}
	if opts.PendingAbandonAfter <= 0 {
		opts.PendingAbandonAfter = time.Hour
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewKeyedMutex()
	}
	if opts.ClaimLockTTL <= 0 {
		opts.ClaimLockTTL = opts.LedgerBudget + time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if acc == nil {
		acc = accumulator.New(s, g, opts.Locks)
	}
	return &Orchestrator{screener: sc, ledger: g, store: s, acc: acc, opts: opts}
}

// CreateResult describes a creation request. Verdict is set whenever screening ran.
type CreateResult struct {
	Nonce    string
	Campaign *campaign.Campaign
	Verdict  campaign.Verdict
	// Existing is true when the nonce had already produced a campaign.
	Existing bool
}

// Create runs a draft through screening and the ledger. A non-Genuine verdict
// returns errno.ErrScreeningRejected; an unknown ledger outcome returns
// errno.ErrOutcomeUnknown and leaves a pending submission for the reconciler.
// Requests sharing a nonce run one at a time; later ones see the first one's result.
func (o *Orchestrator) Create(ctx context.Context, d campaign.Draft) (*CreateResult, error) {
	if d.Nonce == "" {
		d.Nonce = uuid.NewString()
	}
	res := &CreateResult{Nonce: d.Nonce}
	log := logger.Log.With(zap.String("nonce", d.Nonce), zap.String("owner", d.Owner))

	// held from the nonce lookup until the campaign is recorded or pending
	unlock, err := o.opts.Locks.Lock(ctx, "nonce:"+d.Nonce)
	if err != nil {
		return res, fmt.Errorf("%w: %w", errno.ErrScreeningUnavailable, err)
	}
	defer unlock()
	if o.opts.ClaimLock != nil {
		release, err := o.opts.ClaimLock.Lock(ctx, "create:"+d.Nonce, o.opts.ClaimLockTTL)
		if err != nil {
			return res, fmt.Errorf("create lock: %w", err)
		}
		defer release()
	}

	if existing, err := o.store.FindByNonce(ctx, d.Nonce); err == nil {
		res.Campaign, res.Existing = existing, true
		return res, nil
	} else if !errors.Is(err, errno.ErrCampaignNotFound) {
		return res, err
	}
	if pending, err := o.pendingFor(ctx, d.Nonce); err != nil {
		return res, err
	} else if pending {
		return res, errno.ErrOutcomeUnknown.WithMessage("creation " + d.Nonce + " is awaiting ledger confirmation")
	}

	// Draft
	if err := d.Validate(o.opts.Now()); err != nil {
		monitor.CampaignsCreatedTotal.WithLabelValues("invalid").Inc()
		return res, err
	}

	// Screening
	log.Info("campaign screening", zap.String("state", string(campaign.StateScreening)))
	verdict, err := o.screener.Screen(ctx, d.Description)
	if err != nil {
		monitor.CampaignsCreatedTotal.WithLabelValues("screening_unavailable").Inc()
		log.Warn("screening failed", zap.Error(err))
		return res, err
	}
	res.Verdict = verdict
	if !verdict.Passed() {
		monitor.CampaignsCreatedTotal.WithLabelValues("rejected").Inc()
		log.Info("campaign rejected", zap.String("state", string(campaign.StateRejected)), zap.String("label", verdict.Label))
		reason := verdict.Label
		if verdict.Message != "" {
			reason += " (" + verdict.Message + ")"
		}
		return res, errno.ErrScreeningRejected.WithMessage(reason)
	}
	if err := ctx.Err(); err != nil {
		monitor.CampaignsCreatedTotal.WithLabelValues("cancelled").Inc()
		return res, fmt.Errorf("%w: %w", errno.ErrScreeningUnavailable, err)
	}

	// LedgerSubmission runs detached from the request from here on.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.LedgerBudget)
	defer cancel()

	log.Info("campaign ledger submission", zap.String("state", string(campaign.StateLedgerSubmission)))
	id, err := o.submit(lctx, d)
	if err != nil {
		if errors.Is(err, errno.ErrOutcomeUnknown) {
			monitor.CampaignsCreatedTotal.WithLabelValues("unknown").Inc()
			o.savePending(lctx, d, err)
			return res, err
		}
		monitor.CampaignsCreatedTotal.WithLabelValues("ledger_failed").Inc()
		log.Warn("ledger submission failed", zap.Error(err))
		return res, err
	}

	// Active
	c, err := o.activate(lctx, d, id)
	if err != nil {
		// on the ledger but not recorded: leave it to the reconciler
		monitor.CampaignsCreatedTotal.WithLabelValues("unknown").Inc()
		o.savePending(lctx, d, err)
		return res, fmt.Errorf("%w: campaign %d not recorded: %w", errno.ErrOutcomeUnknown, id, err)
	}
	monitor.CampaignsCreatedTotal.WithLabelValues("active").Inc()
	log.Info("campaign active", zap.Uint64("campaign_id", uint64(id)), zap.String("state", string(campaign.StateActive)))
	res.Campaign = c
	return res, nil
}

// submit creates the campaign on the ledger. After a timeout it looks the
// campaign up by its dedup key before trying again, and gives up with
// errno.ErrOutcomeUnknown when attempts run out.
func (o *Orchestrator) submit(ctx context.Context, d campaign.Draft) (campaign.ID, error) {
	unknown := false
	var lastErr error

	for attempt := 1; attempt <= o.opts.CreateAttempts; attempt++ {
		id, err := o.ledger.CreateCampaign(ctx, d)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if !errors.Is(err, errno.ErrLedgerTimeout) {
			if !unknown {
				// definitive, and nothing landed before
				return 0, err
			}
			break
		}
		unknown = true
		logger.Warn("ledger outcome unknown, reconciling",
			zap.String("nonce", d.Nonce), zap.Int("attempt", attempt), zap.Error(err))

		id, found, ferr := o.ledger.FindCampaign(ctx, d.Key())
		if ferr != nil {
			return 0, fmt.Errorf("%w: %w", errno.ErrOutcomeUnknown, ferr)
		}
		if found {
			return id, nil
		}
	}

	if unknown {
		// one last look: a later attempt may have failed after an earlier one landed
		id, found, ferr := o.ledger.FindCampaign(ctx, d.Key())
		if ferr == nil && found {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %w", errno.ErrOutcomeUnknown, lastErr)
}

func (o *Orchestrator) activate(ctx context.Context, d campaign.Draft, id campaign.ID) (*campaign.Campaign, error) {
	c := &campaign.Campaign{
		ID:          id,
		Nonce:       d.Nonce,
		Owner:       d.Owner,
		Title:       d.Title,
		Description: d.Description,
		Target:      d.Target,
		Deadline:    d.Deadline,
		Image:       d.Image,
		Category:    d.Category,
		CreatedAt:   o.opts.Now(),
	}
	if err := o.store.Activate(ctx, c); err != nil {
		return nil, err
	}
	return o.store.GetCampaign(ctx, id)
}

func (o *Orchestrator) savePending(ctx context.Context, d campaign.Draft, cause error) {
	p := campaign.PendingSubmission{Draft: d, Status: campaign.PendingOpen, LastError: cause.Error()}
	if err := o.store.SavePending(ctx, p); err != nil {
		logger.Error("failed to persist pending submission", zap.String("nonce", d.Nonce), zap.Error(err))
		return
	}
	monitor.PendingSubmissions.Inc()
	logger.Warn("creation pending confirmation", zap.String("nonce", d.Nonce), zap.Error(cause))
}

func (o *Orchestrator) pendingFor(ctx context.Context, nonce string) (bool, error) {
	open, err := o.store.ListPending(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range open {
		if p.Draft.Nonce == nonce {
			return true, nil
		}
	}
	return false, nil
}

// Claim withdraws the collected funds for the owner, at most once. Checks run
// in order: owner, expiry, not yet claimed (re-read from the ledger).
func (o *Orchestrator) Claim(ctx context.Context, id campaign.ID, caller string) (campaign.Receipt, error) {
	if caller == "" {
		return campaign.Receipt{}, errno.ErrUnauthorized
	}

	unlock, err := o.opts.Locks.Lock(ctx, id.String())
	if err != nil {
		return campaign.Receipt{}, err
	}
	defer unlock()
	if o.opts.ClaimLock != nil {
		release, err := o.opts.ClaimLock.Lock(ctx, "claim:"+id.String(), o.opts.ClaimLockTTL)
		if err != nil {
			return campaign.Receipt{}, fmt.Errorf("claim lock: %w", err)
		}
		defer release()
	}

	r, err := o.claimLocked(ctx, id, caller)
	monitor.ClaimsTotal.WithLabelValues(claimResult(err)).Inc()
	return r, err
}

func claimResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errno.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, errno.ErrNotExpired):
		return "not_expired"
	case errors.Is(err, errno.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, errno.ErrOutcomeUnknown):
		return "unknown"
	default:
		return "error"
	}
}

func (o *Orchestrator) claimLocked(ctx context.Context, id campaign.ID, caller string) (campaign.Receipt, error) {
	log := logger.Log.With(zap.Uint64("campaign_id", uint64(id)), zap.String("caller", caller))

	c, err := o.store.GetCampaign(ctx, id)
	if err != nil {
		return campaign.Receipt{}, err
	}
	now := o.opts.Now()
	if !c.IsOwner(caller) {
		return campaign.Receipt{}, errno.ErrNotOwner
	}
	if !c.Expired(now) {
		return campaign.Receipt{}, errno.ErrNotExpired
	}
	if c.Claimed {
		return campaign.Receipt{}, errno.ErrAlreadyClaimed
	}

	// local state may be stale; the ledger decides
	snap, err := o.ledger.GetCampaign(ctx, id)
	if err != nil {
		return campaign.Receipt{}, err
	}
	if !strings.EqualFold(snap.Owner, caller) {
		return campaign.Receipt{}, errno.ErrNotOwner
	}
	if !now.After(snap.Deadline) {
		return campaign.Receipt{}, errno.ErrNotExpired
	}
	if snap.Claimed {
		o.recordForeignClaim(ctx, snap, now)
		return campaign.Receipt{}, errno.ErrAlreadyClaimed
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.LedgerBudget)
	defer cancel()

	log.Info("claim submitted")
	r, err := o.ledger.Claim(lctx, id, caller)
	switch {
	case err == nil:
	case errors.Is(err, errno.ErrAlreadyClaimed):
		o.recordForeignClaim(lctx, snap, now)
		return campaign.Receipt{}, err
	case errors.Is(err, errno.ErrLedgerTimeout):
		after, gerr := o.ledger.GetCampaign(lctx, id)
		if gerr != nil || !after.Claimed {
			log.Warn("claim outcome unknown", zap.Error(err))
			return campaign.Receipt{}, fmt.Errorf("%w: %w", errno.ErrOutcomeUnknown, err)
		}
		r = campaign.Receipt{CampaignID: id, Amount: after.AmountCollected, ClaimedBy: after.Owner, ClaimedAt: now}
	default:
		return campaign.Receipt{}, err
	}

	// Claimed
	o.syncDonors(lctx, id)
	if err := o.store.MarkClaimed(lctx, r); err != nil && !errors.Is(err, errno.ErrAlreadyClaimed) {
		log.Error("claim confirmed on ledger but not recorded", zap.String("tx_hash", r.TxHash), zap.Error(err))
	}
	log.Info("campaign claimed",
		zap.String("state", string(campaign.StateClaimed)),
		zap.String("tx_hash", r.TxHash),
		zap.String("amount", r.Amount.String()))
	return r, nil
}

// recordForeignClaim syncs a claim the ledger has but the store does not.
func (o *Orchestrator) recordForeignClaim(ctx context.Context, snap ledger.Snapshot, now time.Time) {
	o.syncDonors(ctx, snap.ID)
	r := campaign.Receipt{CampaignID: snap.ID, Amount: snap.AmountCollected, ClaimedBy: snap.Owner, ClaimedAt: now}
	if err := o.store.MarkClaimed(ctx, r); err != nil && !errors.Is(err, errno.ErrAlreadyClaimed) {
		logger.Warn("failed to sync ledger claim", zap.Uint64("campaign_id", uint64(snap.ID)), zap.Error(err))
	}
}

// syncDonors catches the local donor record up with the ledger before a claim
// is recorded; syncing stops once a campaign is claimed. The caller holds the campaign lock.
func (o *Orchestrator) syncDonors(ctx context.Context, id campaign.ID) {
	rep, err := o.acc.ReconcileHeld(ctx, id)
	if err != nil {
		logger.Warn("donor sync before claim failed", zap.Uint64("campaign_id", uint64(id)), zap.Error(err))
		return
	}
	if rep.Added > 0 {
		logger.Info("late pledges recorded at claim", zap.Uint64("campaign_id", uint64(id)), zap.Int("added", rep.Added))
	}
}

// View returns the display projection of a campaign.
func (o *Orchestrator) View(ctx context.Context, id campaign.ID) (campaign.View, error) {
	c, err := o.store.GetCampaign(ctx, id)
	if err != nil {
		return campaign.View{}, err
	}
	n, err := o.acc.DonorCount(ctx, id)
	if err != nil {
		return campaign.View{}, err
	}
	return campaign.NewView(c, n, o.opts.Now()), nil
}

// List returns every recorded campaign.
func (o *Orchestrator) List(ctx context.Context) ([]campaign.View, error) {
	all, err := o.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	now := o.opts.Now()
	out := make([]campaign.View, 0, len(all))
	for _, c := range all {
		n, err := o.acc.DonorCount(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, campaign.NewView(c, n, now))
	}
	return out, nil
}

// Donors returns per-donor totals of a campaign.
func (o *Orchestrator) Donors(ctx context.Context, id campaign.ID) ([]campaign.DonorTotal, error) {
	return o.acc.Donors(ctx, id)
}

// Reconcile brings the donor record of one campaign in line with the ledger.
func (o *Orchestrator) Reconcile(ctx context.Context, id campaign.ID) (accumulator.Report, error) {
	if _, err := o.store.GetCampaign(ctx, id); err != nil {
		return accumulator.Report{}, err
	}
	return o.acc.Reconcile(ctx, id)
}

// PendingReport counts what one ResolvePending pass did.
type PendingReport struct {
	Resolved  int
	Abandoned int
	Open      int
}

// ResolvePending settles unknown creations by looking them up on the ledger.
// A creation not found within PendingAbandonAfter is abandoned on age alone,
// without a definitive ledger answer, and is never resubmitted.
func (o *Orchestrator) ResolvePending(ctx context.Context) (PendingReport, error) {
	var rep PendingReport
	open, err := o.store.ListPending(ctx)
	if err != nil {
		return rep, err
	}
	now := o.opts.Now()

	for _, p := range open {
		id, found, err := o.ledger.FindCampaign(ctx, p.Draft.Key())
		if err != nil {
			logger.Warn("pending lookup failed", zap.String("nonce", p.Draft.Nonce), zap.Error(err))
			rep.Open++
			continue
		}
		switch {
		case found:
			if _, err := o.activate(ctx, p.Draft, id); err != nil {
				logger.Warn("pending activation failed", zap.String("nonce", p.Draft.Nonce), zap.Error(err))
				rep.Open++
				continue
			}
			if err := o.store.ResolvePending(ctx, p.Draft.Nonce, campaign.PendingResolved, &id, ""); err != nil {
				return rep, err
			}
			rep.Resolved++
			logger.Info("pending creation resolved", zap.String("nonce", p.Draft.Nonce), zap.Uint64("campaign_id", uint64(id)))
		case now.Sub(p.CreatedAt) > o.opts.PendingAbandonAfter:
			if err := o.store.ResolvePending(ctx, p.Draft.Nonce, campaign.PendingAbandoned, nil, "not found on ledger"); err != nil {
				return rep, err
			}
			rep.Abandoned++
			monitor.PendingAbandonedTotal.Inc()
			logger.Warn("pending creation abandoned without a ledger answer; run backfill if it lands later",
				zap.String("nonce", p.Draft.Nonce),
				zap.String("owner", p.Draft.Owner),
				zap.String("title", p.Draft.Title),
				zap.Duration("age", now.Sub(p.CreatedAt)))
		default:
			rep.Open++
		}
	}
	monitor.PendingSubmissions.Set(float64(rep.Open))
	return rep, nil
}
