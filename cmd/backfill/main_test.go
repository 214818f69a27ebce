package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/store"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

func TestBackfill(t *testing.T) {
	l := ledger.NewMemoryLedger(nil)
	s := store.NewMemoryStore()
	ctx := t.Context()

	id, err := l.CreateCampaign(ctx, campaign.Draft{
		Owner:       "0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e",
		Title:       "garden",
		Description: "d",
		Target:      decimal.NewFromInt(5),
		Deadline:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, l.Donate(id, "0x1111111111111111111111111111111111111111", decimal.NewFromInt(2)))
	require.NoError(t, l.Donate(id, "0x2222222222222222222222222222222222222222", decimal.NewFromInt(1)))

	res, err := Backfill(ctx, l, s, nil, true)
	require.NoError(t, err)
	assert.Equal(t, Result{Activated: 1}, res)
	_, err = s.GetCampaign(ctx, id)
	assert.Error(t, err, "dry run writes nothing")

	res, err = Backfill(ctx, l, s, nil, false)
	require.NoError(t, err)
	assert.Equal(t, Result{Activated: 1, Synced: 1, PledgesAdded: 2}, res)

	c, err := s.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.AmountCollected.Equal(decimal.NewFromInt(3)))

	// idempotent
	res, err = Backfill(ctx, l, s, []uint64{uint64(id)}, false)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1}, res)
}

type failingClaims struct {
	*store.MemoryStore
	err error
}

func (f *failingClaims) MarkClaimed(ctx context.Context, r campaign.Receipt) error {
	return f.err
}

func claimedOnLedger(t *testing.T) (*ledger.MemoryLedger, campaign.ID) {
	t.Helper()
	now := time.Now()
	l := ledger.NewMemoryLedger(func() time.Time { return now })
	owner := "0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e"
	id, err := l.CreateCampaign(t.Context(), campaign.Draft{
		Owner: owner, Title: "done", Description: "d", Target: decimal.NewFromInt(1), Deadline: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	_, err = l.Claim(t.Context(), id, owner)
	require.NoError(t, err)
	return l, id
}

func TestBackfillRecordsLedgerClaims(t *testing.T) {
	l, id := claimedOnLedger(t)
	s := store.NewMemoryStore()

	_, err := Backfill(t.Context(), l, s, nil, false)
	require.NoError(t, err)
	c, err := s.GetCampaign(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, c.Claimed)

	// already recorded is not an error
	_, err = Backfill(t.Context(), l, s, nil, false)
	require.NoError(t, err)
}

func TestBackfillReportsClaimWriteFailures(t *testing.T) {
	l, _ := claimedOnLedger(t)

	s := &failingClaims{MemoryStore: store.NewMemoryStore(), err: errno.ErrDatabase.WithMessage("disk full")}
	_, err := Backfill(t.Context(), l, s, nil, false)
	assert.True(t, errors.Is(err, errno.ErrDatabase), "got %v", err)

	s = &failingClaims{MemoryStore: store.NewMemoryStore(), err: errno.ErrAlreadyClaimed}
	_, err = Backfill(t.Context(), l, s, nil, false)
	assert.NoError(t, err)
}
