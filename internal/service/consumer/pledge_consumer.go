// Package consumer ingests confirmed donations reported by external chain indexers.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/event"
	"github.com/vishesh2305/DAAN/internal/service/mq"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

// PledgeRecorder is satisfied by *accumulator.Accumulator.
type PledgeRecorder interface {
	RecordConfirmedPledge(ctx context.Context, id campaign.ID, donor string, amount decimal.Decimal, ledgerRef string, confirmedAt time.Time) error
}

type PledgeConsumer struct {
	consumer mq.Consumer
	recorder PledgeRecorder
}

func NewPledgeConsumer(c mq.Consumer, r PledgeRecorder) *PledgeConsumer {
	return &PledgeConsumer{consumer: c, recorder: r}
}

// Start consumes event.TopicLedgerPledge until ctx is done.
func (p *PledgeConsumer) Start(ctx context.Context) error {
	logger.Info("pledge consumer started", zap.String("topic", event.TopicLedgerPledge))
	return p.consumer.Subscribe(ctx, event.TopicLedgerPledge, func(msg *mq.Message) error {
		return p.Handle(ctx, msg)
	})
}

// Handle records one delivery. Replays and malformed or unknown-campaign
// messages are acknowledged; only storage failures are left for redelivery.
func (p *PledgeConsumer) Handle(ctx context.Context, msg *mq.Message) error {
	var ev event.LedgerPledgeEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logger.Warn("consumer: malformed pledge event", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	amount, err := decimal.NewFromString(ev.Amount)
	if err != nil {
		logger.Warn("consumer: bad pledge amount", zap.String("id", msg.ID), zap.String("amount", ev.Amount))
		return nil
	}

	id := campaign.ID(ev.CampaignID)
	ref := campaign.LedgerRef(id, ev.Index)
	confirmedAt := time.Unix(ev.ConfirmedAt, 0)
	if ev.ConfirmedAt == 0 {
		confirmedAt = time.Time{}
	}

	err = p.recorder.RecordConfirmedPledge(ctx, id, ev.Donor, amount, ref, confirmedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errno.ErrDuplicatePledge):
		logger.Debug("consumer: pledge already recorded", zap.String("ledger_ref", ref))
		return nil
	case errors.Is(err, errno.ErrValidation), errors.Is(err, errno.ErrCampaignNotFound):
		logger.Warn("consumer: pledge dropped", zap.String("ledger_ref", ref), zap.Error(err))
		return nil
	default:
		return err
	}
}
