package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

// MemoryStore keeps everything in process. Used by tests and the CLI.
type MemoryStore struct {
	mu        sync.RWMutex
	campaigns map[campaign.ID]*campaign.Campaign
	byNonce   map[string]campaign.ID
	pledges   map[campaign.ID][]campaign.Pledge
	refs      map[string]struct{}
	pending   map[string]campaign.PendingSubmission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[campaign.ID]*campaign.Campaign),
		byNonce:   make(map[string]campaign.ID),
		pledges:   make(map[campaign.ID][]campaign.Pledge),
		refs:      make(map[string]struct{}),
		pending:   make(map[string]campaign.PendingSubmission),
	}
}

func (s *MemoryStore) Activate(ctx context.Context, c *campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[c.ID]; ok {
		return nil
	}
	cp := *c
	if cp.Nonce == "" {
		cp.Nonce = ledgerNonce(cp.ID)
	}
	cp.AmountCollected = decimal.Zero
	cp.Claimed = false
	cp.Receipt = nil
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.campaigns[cp.ID] = &cp
	s.byNonce[cp.Nonce] = cp.ID
	return nil
}

func (s *MemoryStore) GetCampaign(ctx context.Context, id campaign.ID) (*campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, errno.ErrCampaignNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) FindByNonce(ctx context.Context, nonce string) (*campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNonce[nonce]
	if !ok {
		return nil, errno.ErrCampaignNotFound
	}
	return clone(s.campaigns[id]), nil
}

func (s *MemoryStore) ListCampaigns(ctx context.Context) ([]*campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*campaign.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListExpiredUnclaimed(ctx context.Context, now time.Time) ([]*campaign.Campaign, error) {
	all, err := s.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if !c.Claimed && c.Expired(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendPledge(ctx context.Context, p campaign.Pledge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[p.CampaignID]
	if !ok {
		return false, errno.ErrCampaignNotFound
	}
	if _, dup := s.refs[p.LedgerRef]; dup {
		return false, nil
	}
	s.refs[p.LedgerRef] = struct{}{}
	s.pledges[p.CampaignID] = append(s.pledges[p.CampaignID], p)
	c.AmountCollected, _ = campaign.Totals(s.pledges[p.CampaignID])
	return true, nil
}

func (s *MemoryStore) ListPledges(ctx context.Context, id campaign.ID) ([]campaign.Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.campaigns[id]; !ok {
		return nil, errno.ErrCampaignNotFound
	}
	return append([]campaign.Pledge(nil), s.pledges[id]...), nil
}

func (s *MemoryStore) MarkClaimed(ctx context.Context, r campaign.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[r.CampaignID]
	if !ok {
		return errno.ErrCampaignNotFound
	}
	if c.Claimed {
		return errno.ErrAlreadyClaimed
	}
	c.Claimed = true
	rc := r
	c.Receipt = &rc
	return nil
}

func (s *MemoryStore) SavePending(ctx context.Context, p campaign.PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.pending[p.Draft.Nonce]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Status == "" {
		p.Status = campaign.PendingOpen
	}
	p.UpdatedAt = now
	s.pending[p.Draft.Nonce] = p
	return nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]campaign.PendingSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []campaign.PendingSubmission
	for _, p := range s.pending {
		if p.Status == campaign.PendingOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ResolvePending(ctx context.Context, nonce string, status campaign.PendingStatus, id *campaign.ID, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[nonce]
	if !ok {
		return errno.ErrCampaignNotFound.WithMessage("no pending submission " + nonce)
	}
	p.Status = status
	if id != nil {
		p.CampaignID = *id
	}
	p.LastError = lastErr
	p.UpdatedAt = time.Now()
	s.pending[nonce] = p
	return nil
}

func clone(c *campaign.Campaign) *campaign.Campaign {
	cp := *c
	if c.Receipt != nil {
		r := *c.Receipt
		cp.Receipt = &r
	}
	return &cp
}
