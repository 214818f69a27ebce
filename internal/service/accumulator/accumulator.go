// Package accumulator maintains the append-only donor ledger of each campaign
// and the aggregates derived from it.
package accumulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/logger"
	"github.com/vishesh2305/DAAN/pkg/monitor"
	"github.com/vishesh2305/DAAN/pkg/utils/lock"
)

// Accumulator records confirmed pledges. The local record is a display cache;
// the ledger's donor list stays the source of truth and Reconcile catches up to it.
type Accumulator struct {
	store  store.Store
	ledger ledger.Gateway
	locks  *lock.KeyedMutex
	group  singleflight.Group
}

// New shares locks with the lifecycle orchestrator so pledge recording and
// claims on one campaign serialize.
func New(s store.Store, g ledger.Gateway, locks *lock.KeyedMutex) *Accumulator {
	if locks == nil {
		locks = lock.NewKeyedMutex()
	}
	return &Accumulator{store: s, ledger: g, locks: locks}
}

// RecordConfirmedPledge appends a confirmed pledge. A ledgerRef that was
// already recorded returns errno.ErrDuplicatePledge and changes nothing.
func (a *Accumulator) RecordConfirmedPledge(ctx context.Context, id campaign.ID, donor string, amount decimal.Decimal, ledgerRef string, confirmedAt time.Time) error {
	p, err := newPledge(id, donor, amount, ledgerRef, confirmedAt)
	if err != nil {
		return err
	}

	unlock, err := a.locks.Lock(ctx, id.String())
	if err != nil {
		return err
	}
	defer unlock()
	return a.appendPledge(ctx, p)
}

func newPledge(id campaign.ID, donor string, amount decimal.Decimal, ledgerRef string, confirmedAt time.Time) (campaign.Pledge, error) {
	switch {
	case strings.TrimSpace(donor) == "":
		return campaign.Pledge{}, errno.ErrValidation.WithMessage("donor is required")
	case !amount.IsPositive():
		return campaign.Pledge{}, errno.ErrValidation.WithMessage("pledge amount must be positive")
	case strings.TrimSpace(ledgerRef) == "":
		return campaign.Pledge{}, errno.ErrValidation.WithMessage("ledger reference is required")
	}
	if confirmedAt.IsZero() {
		confirmedAt = time.Now()
	}
	return campaign.Pledge{
		CampaignID:  id,
		Donor:       donor,
		Amount:      amount,
		LedgerRef:   ledgerRef,
		ConfirmedAt: confirmedAt,
	}, nil
}

// appendPledge expects the campaign lock to be held.
func (a *Accumulator) appendPledge(ctx context.Context, p campaign.Pledge) error {
	applied, err := a.store.AppendPledge(ctx, p)
	if err != nil {
		return err
	}
	if !applied {
		return errno.ErrDuplicatePledge.WithMessage(p.LedgerRef)
	}

	monitor.PledgesRecordedTotal.Inc()
	monitor.PledgeAmountTotal.Add(p.Amount.InexactFloat64())
	logger.Info("pledge recorded",
		zap.Uint64("campaign_id", uint64(p.CampaignID)),
		zap.String("donor", p.Donor),
		zap.String("amount", p.Amount.String()),
		zap.String("ledger_ref", p.LedgerRef))
	return nil
}

// TotalRaised sums every recorded pledge of the campaign.
func (a *Accumulator) TotalRaised(ctx context.Context, id campaign.ID) (decimal.Decimal, error) {
	pledges, err := a.store.ListPledges(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	sum, _ := campaign.Totals(pledges)
	return sum, nil
}

// DonorCount counts distinct donors.
func (a *Accumulator) DonorCount(ctx context.Context, id campaign.ID) (int, error) {
	pledges, err := a.store.ListPledges(ctx, id)
	if err != nil {
		return 0, err
	}
	_, donors := campaign.Totals(pledges)
	return len(donors), nil
}

// Donors returns per-donor totals, largest first.
func (a *Accumulator) Donors(ctx context.Context, id campaign.ID) ([]campaign.DonorTotal, error) {
	pledges, err := a.store.ListPledges(ctx, id)
	if err != nil {
		return nil, err
	}
	_, donors := campaign.Totals(pledges)
	return donors, nil
}

// Report is the outcome of one reconciliation against the ledger.
type Report struct {
	CampaignID  campaign.ID     `json:"campaign_id"`
	LedgerTotal decimal.Decimal `json:"ledger_total"`
	LocalTotal  decimal.Decimal `json:"local_total"`
	Added       int             `json:"added"`
	Consistent  bool            `json:"consistent"`
}

// Reconcile replays the ledger's donor list into the local record. Concurrent
// calls for one campaign share a single ledger read.
func (a *Accumulator) Reconcile(ctx context.Context, id campaign.ID) (Report, error) {
	v, err, _ := a.group.Do(id.String(), func() (interface{}, error) {
		return a.reconcile(ctx, id, false)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

// ReconcileHeld is Reconcile for a caller that already holds the campaign's
// lock, such as a claim in progress. It does not share reads with Reconcile.
func (a *Accumulator) ReconcileHeld(ctx context.Context, id campaign.ID) (Report, error) {
	return a.reconcile(ctx, id, true)
}

func (a *Accumulator) reconcile(ctx context.Context, id campaign.ID, held bool) (Report, error) {
	donations, err := a.ledger.GetDonors(ctx, id)
	if err != nil {
		return Report{}, fmt.Errorf("read donors of campaign %d: %w", id, err)
	}

	rep := Report{CampaignID: id, LedgerTotal: decimal.Zero}
	for _, d := range donations {
		rep.LedgerTotal = rep.LedgerTotal.Add(d.Amount)
		p := d.Pledge(id)
		var err error
		if held {
			if p, err = newPledge(id, p.Donor, p.Amount, p.LedgerRef, p.ConfirmedAt); err == nil {
				err = a.appendPledge(ctx, p)
			}
		} else {
			err = a.RecordConfirmedPledge(ctx, id, p.Donor, p.Amount, p.LedgerRef, p.ConfirmedAt)
		}
		switch {
		case err == nil:
			rep.Added++
		case errors.Is(err, errno.ErrDuplicatePledge):
		default:
			return rep, err
		}
	}

	rep.LocalTotal, err = a.TotalRaised(ctx, id)
	if err != nil {
		return rep, err
	}
	rep.Consistent = rep.LocalTotal.Equal(rep.LedgerTotal)
	if !rep.Consistent {
		logger.Warn("donor ledger mismatch after reconcile",
			zap.Uint64("campaign_id", uint64(id)),
			zap.String("ledger_total", rep.LedgerTotal.String()),
			zap.String("local_total", rep.LocalTotal.String()))
	}
	return rep, nil
}
