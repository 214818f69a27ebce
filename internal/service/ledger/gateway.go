// Package ledger talks to the CrowdFunding contract that holds campaign funds.
// It translates ledger failures into the errno taxonomy: LedgerRejected is
// definitive, LedgerUnavailable means nothing was submitted, and LedgerTimeout
// means the write may or may not have landed and must be reconciled.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vishesh2305/DAAN/internal/campaign"
)

// Gateway is the ledger surface used by the lifecycle engine.
type Gateway interface {
	// CreateCampaign submits d and waits for confirmation.
	CreateCampaign(ctx context.Context, d campaign.Draft) (campaign.ID, error)
	// FindCampaign looks for a campaign created with key. Used to resolve unknown outcomes.
	FindCampaign(ctx context.Context, key campaign.DedupKey) (campaign.ID, bool, error)
	GetCampaign(ctx context.Context, id campaign.ID) (Snapshot, error)
	ListCampaigns(ctx context.Context) ([]Snapshot, error)
	// GetDonors returns the donor list in ledger order. Read-only and always safe to retry.
	GetDonors(ctx context.Context, id campaign.ID) ([]Donation, error)
	// Claim withdraws collected funds for the owner. Ownership, expiry and the
	// claimed flag are re-read from the ledger right before submitting.
	Claim(ctx context.Context, id campaign.ID, caller string) (campaign.Receipt, error)
}

// Snapshot is the ledger's view of one campaign.
type Snapshot struct {
	ID              campaign.ID
	Owner           string
	Title           string
	Description     string
	Target          decimal.Decimal
	Deadline        time.Time
	AmountCollected decimal.Decimal
	Image           string
	Claimed         bool
}

// Key returns the dedup key the snapshot would match.
func (s Snapshot) Key() campaign.DedupKey {
	return campaign.DedupKey{Owner: s.Owner, Title: s.Title, Deadline: s.Deadline.Unix()}
}

// Donation is one entry of a campaign's donor list.
type Donation struct {
	Index       int
	Donor       string
	Amount      decimal.Decimal
	ConfirmedAt time.Time
}

// Pledge converts the entry into a pledge keyed by its ledger position.
func (d Donation) Pledge(id campaign.ID) campaign.Pledge {
	return campaign.Pledge{
		CampaignID:  id,
		Donor:       d.Donor,
		Amount:      d.Amount,
		LedgerRef:   campaign.LedgerRef(id, d.Index),
		ConfirmedAt: d.ConfirmedAt,
	}
}
