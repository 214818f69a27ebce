package accumulator

import (
	"errors"
	"sync"
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

const (
	owner = "0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e"
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func setup(t *testing.T) (*Accumulator, *ledger.MemoryLedger, campaign.ID) {
	t.Helper()
	l := ledger.NewMemoryLedger(nil)
	s := store.NewMemoryStore()

	d := campaign.Draft{
		Owner:       owner,
		Title:       "Community Garden",
		Description: "Raised beds.",
		Target:      decimal.NewFromInt(5),
		Deadline:    time.Now().Add(time.Hour),
	}
	id, err := l.CreateCampaign(t.Context(), d)
	require.NoError(t, err)
	require.NoError(t, s.Activate(t.Context(), &campaign.Campaign{
		ID: id, Owner: d.Owner, Title: d.Title, Description: d.Description, Target: d.Target, Deadline: d.Deadline,
	}))
	return New(s, l, nil), l, id
}

func TestRecordConfirmedPledgeAggregates(t *testing.T) {
	a, _, id := setup(t)
	ctx := t.Context()

	require.NoError(t, a.RecordConfirmedPledge(ctx, id, alice, decimal.NewFromInt(2), "r-1", time.Now()))
	require.NoError(t, a.RecordConfirmedPledge(ctx, id, bob, decimal.NewFromInt(1), "r-2", time.Now()))
	require.NoError(t, a.RecordConfirmedPledge(ctx, id, alice, decimal.RequireFromString("0.5"), "r-3", time.Now()))

	total, err := a.TotalRaised(ctx, id)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("3.5")))

	n, err := a.DonorCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordConfirmedPledgeReplayDoesNotDoubleCount(t *testing.T) {
	a, _, id := setup(t)
	ctx := t.Context()

	require.NoError(t, a.RecordConfirmedPledge(ctx, id, alice, decimal.NewFromInt(2), "r-1", time.Now()))
	err := a.RecordConfirmedPledge(ctx, id, alice, decimal.NewFromInt(2), "r-1", time.Now())
	assert.True(t, errors.Is(err, errno.ErrDuplicatePledge))

	total, err := a.TotalRaised(ctx, id)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(2)))
}

func TestRecordConfirmedPledgeValidation(t *testing.T) {
	a, _, id := setup(t)
	ctx := t.Context()

	assert.True(t, errors.Is(a.RecordConfirmedPledge(ctx, id, "", decimal.NewFromInt(1), "r", time.Now()), errno.ErrValidation))
	assert.True(t, errors.Is(a.RecordConfirmedPledge(ctx, id, alice, decimal.Zero, "r", time.Now()), errno.ErrValidation))
	assert.True(t, errors.Is(a.RecordConfirmedPledge(ctx, id, alice, decimal.NewFromInt(1), " ", time.Now()), errno.ErrValidation))
	assert.True(t, errors.Is(a.RecordConfirmedPledge(ctx, 99, alice, decimal.NewFromInt(1), "r", time.Now()), errno.ErrCampaignNotFound))
}

func TestConcurrentReplaysCountOnce(t *testing.T) {
	a, _, id := setup(t)
	ctx := t.Context()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.RecordConfirmedPledge(ctx, id, alice, decimal.NewFromInt(1), "same-ref", time.Now())
		}()
	}
	wg.Wait()

	total, err := a.TotalRaised(ctx, id)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(1)))
}

func TestReconcileCatchesUpWithLedger(t *testing.T) {
	a, l, id := setup(t)
	ctx := t.Context()

	require.NoError(t, l.Donate(id, alice, decimal.NewFromInt(2)))
	require.NoError(t, l.Donate(id, bob, decimal.NewFromInt(1)))
	// the first donation was already seen by the observer
	require.NoError(t, a.RecordConfirmedPledge(ctx, id, alice, decimal.NewFromInt(2), campaign.LedgerRef(id, 0), time.Now()))

	rep, err := a.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)
	assert.True(t, rep.Consistent)
	assert.True(t, rep.LocalTotal.Equal(decimal.NewFromInt(3)))

	rep, err = a.Reconcile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Added)
	assert.True(t, rep.Consistent)
}
