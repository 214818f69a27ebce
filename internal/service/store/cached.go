package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/cache"
	"github.com/vishesh2305/DAAN/pkg/logger"
)

const campaignTTL = 30 * time.Second

// CachedStore serves campaign reads from a cache and invalidates on every
// write that changes the campaign row.
type CachedStore struct {
	Store
	cache cache.Cache
}

func NewCachedStore(inner Store, c cache.Cache) *CachedStore {
	return &CachedStore{Store: inner, cache: c}
}

func campaignKey(id campaign.ID) string {
	return fmt.Sprintf("daan:campaign:%d", uint64(id))
}

func (s *CachedStore) GetCampaign(ctx context.Context, id campaign.ID) (*campaign.Campaign, error) {
	var c campaign.Campaign
	err := s.cache.Get(ctx, campaignKey(id), &c)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.Warn("campaign cache read failed", zap.Uint64("campaign_id", uint64(id)), zap.Error(err))
	}

	fresh, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, campaignKey(id), fresh, campaignTTL); err != nil {
		logger.Warn("campaign cache write failed", zap.Uint64("campaign_id", uint64(id)), zap.Error(err))
	}
	return fresh, nil
}

func (s *CachedStore) Activate(ctx context.Context, c *campaign.Campaign) error {
	defer s.invalidate(ctx, c.ID)
	return s.Store.Activate(ctx, c)
}

func (s *CachedStore) AppendPledge(ctx context.Context, p campaign.Pledge) (bool, error) {
	applied, err := s.Store.AppendPledge(ctx, p)
	if applied {
		s.invalidate(ctx, p.CampaignID)
	}
	return applied, err
}

func (s *CachedStore) MarkClaimed(ctx context.Context, r campaign.Receipt) error {
	defer s.invalidate(ctx, r.CampaignID)
	return s.Store.MarkClaimed(ctx, r)
}

func (s *CachedStore) invalidate(ctx context.Context, id campaign.ID) {
	if err := s.cache.Delete(ctx, campaignKey(id)); err != nil {
		logger.Warn("campaign cache invalidate failed", zap.Uint64("campaign_id", uint64(id)), zap.Error(err))
	}
}
