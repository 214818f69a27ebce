package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/service/accumulator"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/lifecycle"
	"github.com/vishesh2305/DAAN/internal/service/store"
)

const owner = "0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e"

type stubResolver struct {
	calls int
	rep   lifecycle.PendingReport
}

func (r *stubResolver) ResolvePending(ctx context.Context) (lifecycle.PendingReport, error) {
	r.calls++
	return r.rep, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *memLocker) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

func seed(t *testing.T, l *ledger.MemoryLedger, s store.Store, title string, deadline time.Time) campaign.ID {
	t.Helper()
	d := campaign.Draft{Owner: owner, Title: title, Description: "d", Target: decimal.NewFromInt(1), Deadline: deadline}
	id, err := l.CreateCampaign(t.Context(), d)
	require.NoError(t, err)
	require.NoError(t, s.Activate(t.Context(), &campaign.Campaign{
		ID: id, Owner: owner, Title: title, Description: "d", Target: d.Target, Deadline: deadline,
	}))
	return id
}

func TestRunOnce(t *testing.T) {
	l := ledger.NewMemoryLedger(nil)
	s := store.NewMemoryStore()
	acc := accumulator.New(s, l, nil)
	now := time.Now()

	active := seed(t, l, s, "active", now.Add(time.Hour))
	expired := seed(t, l, s, "expired", now.Add(-time.Hour))
	require.NoError(t, l.Donate(active, "0x1111111111111111111111111111111111111111", decimal.NewFromInt(1)))

	res := &stubResolver{rep: lifecycle.PendingReport{Resolved: 1}}
	svc := NewCronService("", nil, res, acc, s)

	sum := svc.RunOnce(t.Context())
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 1, sum.Pending.Resolved)
	assert.Equal(t, 2, sum.Synced)
	assert.Equal(t, 1, sum.PledgesAdded)
	assert.Zero(t, sum.Inconsistent)
	assert.Equal(t, []campaign.ID{expired}, sum.ExpiredUnclaimed)

	total, err := acc.TotalRaised(t.Context(), active)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(1)))
}

func TestRunOnceCountsPledgeConfirmedAfterDeadline(t *testing.T) {
	l := ledger.NewMemoryLedger(nil)
	s := store.NewMemoryStore()
	acc := accumulator.New(s, l, nil)

	id := seed(t, l, s, "late", time.Now().Add(-time.Second))
	require.NoError(t, l.Donate(id, "0x1111111111111111111111111111111111111111", decimal.NewFromInt(2)))

	svc := NewCronService("", nil, &stubResolver{}, acc, s)
	sum := svc.RunOnce(t.Context())
	assert.Equal(t, 1, sum.PledgesAdded)
	assert.Equal(t, []campaign.ID{id}, sum.ExpiredUnclaimed)

	total, err := acc.TotalRaised(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(2)), "local total %s", total)

	// replays stay idempotent
	sum = svc.RunOnce(t.Context())
	assert.Zero(t, sum.PledgesAdded)
	assert.Zero(t, sum.Inconsistent)
}

func TestReconcileSkipsWhenLockHeld(t *testing.T) {
	s := store.NewMemoryStore()
	l := ledger.NewMemoryLedger(nil)
	locker := &memLocker{held: map[string]bool{lockKey: true}}
	res := &stubResolver{}
	svc := NewCronService("@every 1h", locker, res, accumulator.New(s, l, nil), s)

	svc.Reconcile()
	assert.Zero(t, res.calls)

	require.NoError(t, locker.Release(t.Context(), lockKey))
	svc.Reconcile()
	assert.Equal(t, 1, res.calls)
	assert.False(t, locker.held[lockKey], "lock released after the run")
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewCronService("not a spec", nil, &stubResolver{}, accumulator.New(s, ledger.NewMemoryLedger(nil), nil), s)
	assert.Error(t, svc.Start())
}
