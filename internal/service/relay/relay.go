// Package relay moves outbox rows to the message broker.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vishesh2305/DAAN/internal/model"
	"github.com/vishesh2305/DAAN/internal/service/mq"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

const batchSize = 50

// RelayService publishes pending outbox messages. Delivery is at-least-once:
// a message is marked SENT only after Publish succeeds, so consumers must be idempotent.
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
}

func NewRelayService(db *gorm.DB, producer mq.Producer, interval time.Duration) *RelayService {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &RelayService{
		db:       db,
		producer: producer,
		interval: interval,
	}
}

// Start polls until ctx is done.
func (s *RelayService) Start(ctx context.Context) {
	logger.Info("relay started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("relay stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("relay: query pending messages failed", zap.Error(err))
			}
		}
	}
}

// ProcessPending publishes one batch in insertion order and returns how many were sent.
func (s *RelayService) ProcessPending(ctx context.Context) (int, error) {
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(batchSize).
		Find(&messages).Error; err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	sent := 0
	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("relay: publish failed", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic), zap.Error(err))
			// keep per-key order: later messages wait for the next tick
			break
		}
		if err := s.db.WithContext(ctx).Model(&msg).Update("status", model.OutboxSent).Error; err != nil {
			logger.Warn("relay: mark sent failed", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}
	logger.Debug("relay batch", zap.Int("pending", len(messages)), zap.Int("sent", sent))
	return sent, nil
}
