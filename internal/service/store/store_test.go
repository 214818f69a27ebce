package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/event"
	"github.com/vishesh2305/DAAN/internal/model"
	"github.com/vishesh2305/DAAN/pkg/cache"
	"github.com/vishesh2305/DAAN/pkg/database"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

const owner = "0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e"

var deadline = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormStore(db)
}

func implementations(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"gorm":   newGormStore(t),
		"cached": NewCachedStore(NewMemoryStore(), cache.NewMemoryCache(time.Minute, time.Minute)),
	}
}

func garden(id campaign.ID) *campaign.Campaign {
	return &campaign.Campaign{
		ID:          id,
		Nonce:       "nonce-" + id.String(),
		Owner:       owner,
		Title:       "Community Garden",
		Description: "Raised beds for the neighbourhood.",
		Target:      decimal.NewFromInt(5),
		Deadline:    deadline,
	}
}

func pledge(id campaign.ID, index int, amount string) campaign.Pledge {
	return campaign.Pledge{
		CampaignID:  id,
		Donor:       "0x1111111111111111111111111111111111111111",
		Amount:      decimal.RequireFromString(amount),
		LedgerRef:   campaign.LedgerRef(id, index),
		ConfirmedAt: deadline.Add(-time.Hour),
	}
}

func TestActivateAndLookup(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			require.NoError(t, s.Activate(ctx, garden(3)))
			// second activation of the same id is a no-op
			require.NoError(t, s.Activate(ctx, garden(3)))

			c, err := s.GetCampaign(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, "Community Garden", c.Title)
			assert.True(t, c.Target.Equal(decimal.NewFromInt(5)))
			assert.True(t, c.AmountCollected.IsZero())
			assert.True(t, c.Deadline.Equal(deadline))

			byNonce, err := s.FindByNonce(ctx, "nonce-3")
			require.NoError(t, err)
			assert.Equal(t, campaign.ID(3), byNonce.ID)

			_, err = s.GetCampaign(ctx, 99)
			assert.True(t, errors.Is(err, errno.ErrCampaignNotFound))
			_, err = s.FindByNonce(ctx, "missing")
			assert.True(t, errors.Is(err, errno.ErrCampaignNotFound))
		})
	}
}

func TestAppendPledgeIsIdempotent(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			require.NoError(t, s.Activate(ctx, garden(1)))

			applied, err := s.AppendPledge(ctx, pledge(1, 0, "2"))
			require.NoError(t, err)
			assert.True(t, applied)
			applied, err = s.AppendPledge(ctx, pledge(1, 1, "1"))
			require.NoError(t, err)
			assert.True(t, applied)

			applied, err = s.AppendPledge(ctx, pledge(1, 0, "2"))
			require.NoError(t, err)
			assert.False(t, applied)

			c, err := s.GetCampaign(ctx, 1)
			require.NoError(t, err)
			assert.True(t, c.AmountCollected.Equal(decimal.NewFromInt(3)), "got %s", c.AmountCollected)

			pledges, err := s.ListPledges(ctx, 1)
			require.NoError(t, err)
			require.Len(t, pledges, 2)
			assert.Equal(t, "1:0", pledges[0].LedgerRef)

			_, err = s.AppendPledge(ctx, pledge(7, 0, "1"))
			assert.True(t, errors.Is(err, errno.ErrCampaignNotFound))
		})
	}
}

func TestAmountsKeepWeiPrecision(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			c := garden(4)
			c.Target = decimal.RequireFromString("12345678901234.123456789012345678")
			require.NoError(t, s.Activate(ctx, c))

			_, err := s.AppendPledge(ctx, pledge(4, 0, "1.000000000000000001"))
			require.NoError(t, err)
			_, err = s.AppendPledge(ctx, pledge(4, 1, "0.000000000000000001"))
			require.NoError(t, err)

			got, err := s.GetCampaign(ctx, 4)
			require.NoError(t, err)
			assert.Equal(t, "12345678901234.123456789012345678", got.Target.String())
			assert.Equal(t, "1.000000000000000002", got.AmountCollected.String())

			pledges, err := s.ListPledges(ctx, 4)
			require.NoError(t, err)
			require.Len(t, pledges, 2)
			assert.Equal(t, "1.000000000000000001", pledges[0].Amount.String())

			require.NoError(t, s.MarkClaimed(ctx, campaign.Receipt{
				CampaignID: 4, Amount: got.AmountCollected, ClaimedBy: owner, ClaimedAt: deadline.Add(time.Hour),
			}))
			got, err = s.GetCampaign(ctx, 4)
			require.NoError(t, err)
			require.NotNil(t, got.Receipt)
			assert.Equal(t, "1.000000000000000002", got.Receipt.Amount.String())
		})
	}
}

func TestMarkClaimedOnce(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			require.NoError(t, s.Activate(ctx, garden(2)))

			r := campaign.Receipt{
				CampaignID: 2,
				TxHash:     "0xfeed",
				Amount:     decimal.NewFromInt(3),
				ClaimedBy:  owner,
				ClaimedAt:  deadline.Add(time.Second),
			}
			require.NoError(t, s.MarkClaimed(ctx, r))
			assert.True(t, errors.Is(s.MarkClaimed(ctx, r), errno.ErrAlreadyClaimed))

			c, err := s.GetCampaign(ctx, 2)
			require.NoError(t, err)
			assert.True(t, c.Claimed)
			require.NotNil(t, c.Receipt)
			assert.Equal(t, "0xfeed", c.Receipt.TxHash)

			r.CampaignID = 42
			assert.True(t, errors.Is(s.MarkClaimed(ctx, r), errno.ErrCampaignNotFound))
		})
	}
}

func TestMarkClaimedConcurrent(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			require.NoError(t, s.Activate(ctx, garden(5)))

			const n = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.MarkClaimed(ctx, campaign.Receipt{CampaignID: 5, TxHash: "0x1", ClaimedAt: deadline})
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					} else {
						assert.True(t, errors.Is(err, errno.ErrAlreadyClaimed), "got %v", err)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, succeeded)
		})
	}
}

func TestListExpiredUnclaimedIsStrict(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			require.NoError(t, s.Activate(ctx, garden(1)))
			later := garden(2)
			later.Deadline = deadline.Add(time.Hour)
			require.NoError(t, s.Activate(ctx, later))

			got, err := s.ListExpiredUnclaimed(ctx, deadline)
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = s.ListExpiredUnclaimed(ctx, deadline.Add(time.Second))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, campaign.ID(1), got[0].ID)

			require.NoError(t, s.MarkClaimed(ctx, campaign.Receipt{CampaignID: 1, ClaimedAt: deadline.Add(time.Second)}))
			got, err = s.ListExpiredUnclaimed(ctx, deadline.Add(2*time.Hour))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, campaign.ID(2), got[0].ID)
		})
	}
}

func TestPendingSubmissions(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			d := campaign.Draft{
				Nonce:       "n-1",
				Owner:       owner,
				Title:       "Community Garden",
				Description: "Raised beds.",
				Target:      decimal.NewFromInt(5),
				Deadline:    deadline,
			}
			require.NoError(t, s.SavePending(ctx, campaign.PendingSubmission{Draft: d, LastError: "timeout"}))

			open, err := s.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, "n-1", open[0].Draft.Nonce)
			assert.Equal(t, campaign.PendingOpen, open[0].Status)
			assert.True(t, open[0].Draft.Target.Equal(decimal.NewFromInt(5)))

			id := campaign.ID(4)
			require.NoError(t, s.ResolvePending(ctx, "n-1", campaign.PendingResolved, &id, ""))
			open, err = s.ListPending(ctx)
			require.NoError(t, err)
			assert.Empty(t, open)

			assert.Error(t, s.ResolvePending(ctx, "unknown", campaign.PendingAbandoned, nil, ""))
		})
	}
}

func TestGormStoreWritesOutboxInSameTransaction(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.Activate(ctx, garden(1)))
	_, err := s.AppendPledge(ctx, pledge(1, 0, "2"))
	require.NoError(t, err)
	_, err = s.AppendPledge(ctx, pledge(1, 0, "2"))
	require.NoError(t, err)
	require.NoError(t, s.MarkClaimed(ctx, campaign.Receipt{CampaignID: 1, TxHash: "0x1", ClaimedAt: deadline}))

	var topics []string
	require.NoError(t, s.db.Model(&model.OutboxMessage{}).Order("id").Pluck("topic", &topics).Error)
	assert.Equal(t, []string{
		event.TopicCampaignActivated,
		event.TopicPledgeRecorded,
		event.TopicCampaignClaimed,
	}, topics)
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	inner := NewMemoryStore()
	s := NewCachedStore(inner, cache.NewMemoryCache(time.Minute, time.Minute))
	ctx := t.Context()

	require.NoError(t, s.Activate(ctx, garden(1)))
	c, err := s.GetCampaign(ctx, 1)
	require.NoError(t, err)
	assert.True(t, c.AmountCollected.IsZero())

	_, err = s.AppendPledge(ctx, pledge(1, 0, "2"))
	require.NoError(t, err)

	c, err = s.GetCampaign(ctx, 1)
	require.NoError(t, err)
	assert.True(t, c.AmountCollected.Equal(decimal.NewFromInt(2)))
}
