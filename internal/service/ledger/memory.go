package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

// Fault is an injected outcome for the next call to a MemoryLedger operation.
type Fault int

const (
	FaultNone Fault = iota
	// FaultUnavailable fails before anything is submitted.
	FaultUnavailable
	// FaultRejected fails definitively.
	FaultRejected
	// FaultTimeoutLanded applies the write but reports a confirmation timeout.
	FaultTimeoutLanded
	// FaultTimeoutDropped reports a timeout and never applies the write.
	FaultTimeoutDropped
)

type memCampaign struct {
	owner       common.Address
	title       string
	description string
	target      *big.Int
	deadline    int64
	image       string
	collected   *big.Int
	claimed     bool
	donors      []memDonation
}

type memDonation struct {
	donor       common.Address
	amount      *big.Int
	confirmedAt time.Time
}

// MemoryLedger is an in-process CrowdFunding contract. The server runs on it
// when no RPC endpoint is configured, and tests use it with injected faults.
type MemoryLedger struct {
	mu        sync.Mutex
	campaigns []*memCampaign
	now       func() time.Time

	createFaults []Fault
	claimFaults  []Fault
	createCalls  int
	claimCalls   int
	txSeq        uint64
}

func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{now: now}
}

// InjectCreateFaults queues outcomes for the next CreateCampaign calls.
func (l *MemoryLedger) InjectCreateFaults(f ...Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.createFaults = append(l.createFaults, f...)
}

// InjectClaimFaults queues outcomes for the next Claim calls.
func (l *MemoryLedger) InjectClaimFaults(f ...Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claimFaults = append(l.claimFaults, f...)
}

// CreateCalls counts CreateCampaign submissions.
func (l *MemoryLedger) CreateCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createCalls
}

// ClaimCalls counts Claim calls that reached the ledger.
func (l *MemoryLedger) ClaimCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimCalls
}

func nextFault(q *[]Fault) Fault {
	if len(*q) == 0 {
		return FaultNone
	}
	f := (*q)[0]
	*q = (*q)[1:]
	return f
}

func faultErr(f Fault, op string) error {
	switch f {
	case FaultUnavailable:
		return errno.ErrLedgerUnavailable.WithMessage(op + ": injected")
	case FaultRejected:
		return errno.ErrLedgerRejected.WithMessage(op + ": injected")
	default:
		return errno.ErrLedgerTimeout.WithMessage(op + ": injected")
	}
}

func (l *MemoryLedger) CreateCampaign(ctx context.Context, d campaign.Draft) (campaign.ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", errno.ErrLedgerUnavailable, err)
	}
	if !common.IsHexAddress(d.Owner) {
		return 0, errno.ErrLedgerRejected.WithMessage("malformed owner account")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.createCalls++

	f := nextFault(&l.createFaults)
	switch f {
	case FaultUnavailable, FaultRejected, FaultTimeoutDropped:
		return 0, faultErr(f, "createCampaign")
	}

	l.campaigns = append(l.campaigns, &memCampaign{
		owner:       common.HexToAddress(d.Owner),
		title:       d.Title,
		description: d.Description,
		target:      ToWei(d.Target),
		deadline:    d.Deadline.Unix(),
		image:       d.Image,
		collected:   new(big.Int),
	})
	id := campaign.ID(len(l.campaigns) - 1)

	if f == FaultTimeoutLanded {
		return 0, faultErr(f, "createCampaign")
	}
	return id, nil
}

func (l *MemoryLedger) FindCampaign(ctx context.Context, key campaign.DedupKey) (campaign.ID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.campaigns) - 1; i >= 0; i-- {
		c := l.campaigns[i]
		if key.Matches(c.owner.Hex(), c.title, c.deadline) {
			return campaign.ID(i), true, nil
		}
	}
	return 0, false, nil
}

func (l *MemoryLedger) GetCampaign(ctx context.Context, id campaign.ID) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(id, c), nil
}

func (l *MemoryLedger) ListCampaigns(ctx context.Context) ([]Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Snapshot, 0, len(l.campaigns))
	for i, c := range l.campaigns {
		out = append(out, snapshotOf(campaign.ID(i), c))
	}
	return out, nil
}

func (l *MemoryLedger) GetDonors(ctx context.Context, id campaign.ID) ([]Donation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]Donation, 0, len(c.donors))
	for i, d := range c.donors {
		out = append(out, Donation{
			Index:       i,
			Donor:       d.donor.Hex(),
			Amount:      FromWei(d.amount),
			ConfirmedAt: d.confirmedAt,
		})
	}
	return out, nil
}

// Donate plays donateToCampaign: the pledge is confirmed as soon as it is applied.
func (l *MemoryLedger) Donate(id campaign.ID, donor string, amount decimal.Decimal) error {
	if !common.IsHexAddress(donor) {
		return errno.ErrLedgerRejected.WithMessage("malformed donor account")
	}
	if !amount.IsPositive() {
		return errno.ErrLedgerRejected.WithMessage("donation must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return err
	}
	wei := ToWei(amount)
	c.donors = append(c.donors, memDonation{donor: common.HexToAddress(donor), amount: wei, confirmedAt: l.now()})
	c.collected.Add(c.collected, wei)
	return nil
}

func (l *MemoryLedger) Claim(ctx context.Context, id campaign.ID, caller string) (campaign.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return campaign.Receipt{}, fmt.Errorf("%w: %w", errno.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return campaign.Receipt{}, err
	}
	if !strings.EqualFold(c.owner.Hex(), caller) {
		return campaign.Receipt{}, errno.ErrNotOwner
	}
	now := l.now()
	if !now.After(time.Unix(c.deadline, 0)) {
		return campaign.Receipt{}, errno.ErrNotExpired
	}
	if c.claimed {
		return campaign.Receipt{}, errno.ErrAlreadyClaimed
	}

	l.claimCalls++
	f := nextFault(&l.claimFaults)
	switch f {
	case FaultUnavailable, FaultRejected, FaultTimeoutDropped:
		return campaign.Receipt{}, faultErr(f, "claimFunds")
	}

	c.claimed = true
	l.txSeq++
	receipt := campaign.Receipt{
		CampaignID: id,
		TxHash:     crypto.Keccak256Hash([]byte(fmt.Sprintf("claim:%d:%d", id, l.txSeq))).Hex(),
		Amount:     FromWei(c.collected),
		ClaimedBy:  c.owner.Hex(),
		ClaimedAt:  now,
	}
	if f == FaultTimeoutLanded {
		return campaign.Receipt{}, faultErr(f, "claimFunds")
	}
	return receipt, nil
}

func (l *MemoryLedger) get(id campaign.ID) (*memCampaign, error) {
	if uint64(id) >= uint64(len(l.campaigns)) {
		return nil, errno.ErrCampaignNotFound
	}
	return l.campaigns[id], nil
}

func snapshotOf(id campaign.ID, c *memCampaign) Snapshot {
	return Snapshot{
		ID:              id,
		Owner:           c.owner.Hex(),
		Title:           c.title,
		Description:     c.description,
		Target:          FromWei(c.target),
		Deadline:        time.Unix(c.deadline, 0),
		AmountCollected: FromWei(c.collected),
		Image:           c.image,
		Claimed:         c.claimed,
	}
}
