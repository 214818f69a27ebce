// Package campaign holds the domain types shared by the lifecycle engine:
// drafts, active campaigns, pledges, screening verdicts and claim receipts.
package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vishesh2305/DAAN/pkg/errno"
)

// ID is assigned by the ledger when a campaign is created.
type ID uint64

func (id ID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// State is a lifecycle position. Only Active and Claimed are stored;
// Expired is derived from the deadline and the rest live inside one creation request.
type State string

const (
	StateDraft            State = "draft"
	StateScreening        State = "screening"
	StateRejected         State = "rejected"
	StateLedgerSubmission State = "ledger_submission"
	StateActive           State = "active"
	StateExpired          State = "expired"
	StateClaimed          State = "claimed"
)

// Draft is a creation request before it reaches the ledger.
type Draft struct {
	Nonce       string // request idempotency key
	Owner       string // account reference from the verified session
	Title       string
	Description string
	Target      decimal.Decimal // ETH
	Deadline    time.Time
	Image       string
	Category    string
}

// Validate rejects drafts that must not reach screening.
func (d Draft) Validate(now time.Time) error {
	var reasons []string
	if strings.TrimSpace(d.Owner) == "" {
		reasons = append(reasons, "owner is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		reasons = append(reasons, "title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		reasons = append(reasons, "description is required")
	}
	if !d.Target.IsPositive() {
		reasons = append(reasons, "target must be positive")
	}
	if !d.Deadline.After(now) {
		reasons = append(reasons, "deadline must be in the future")
	}
	if len(reasons) > 0 {
		return errno.ErrValidation.WithMessage(strings.Join(reasons, "; "))
	}
	return nil
}

// Key is the ledger-side identity of a creation: owner, title and deadline.
func (d Draft) Key() DedupKey {
	return DedupKey{Owner: d.Owner, Title: d.Title, Deadline: d.Deadline.Unix()}
}

// DedupKey finds a campaign on the ledger when a creation outcome is unknown.
type DedupKey struct {
	Owner    string
	Title    string
	Deadline int64 // unix seconds, the ledger's resolution
}

// Matches compares owners case-insensitively since hex addresses may differ in checksum casing.
func (k DedupKey) Matches(owner, title string, deadline int64) bool {
	return strings.EqualFold(k.Owner, owner) && k.Title == title && k.Deadline == deadline
}

// Campaign is an Active (or Claimed) campaign recorded in the store.
type Campaign struct {
	ID              ID
	Nonce           string
	Owner           string
	Title           string
	Description     string
	Target          decimal.Decimal
	Deadline        time.Time
	Image           string
	Category        string
	AmountCollected decimal.Decimal
	Claimed         bool
	Receipt         *Receipt
	CreatedAt       time.Time
}

// Expired reports whether now is strictly past the deadline.
func (c *Campaign) Expired(now time.Time) bool {
	return now.After(c.Deadline)
}

// State derives the lifecycle state at now.
func (c *Campaign) State(now time.Time) State {
	switch {
	case c.Claimed:
		return StateClaimed
	case c.Expired(now):
		return StateExpired
	default:
		return StateActive
	}
}

// IsOwner compares account references case-insensitively.
func (c *Campaign) IsOwner(account string) bool {
	return account != "" && strings.EqualFold(c.Owner, account)
}

// Receipt records the single successful claim.
type Receipt struct {
	CampaignID ID
	TxHash     string
	Amount     decimal.Decimal
	ClaimedBy  string
	ClaimedAt  time.Time
}
