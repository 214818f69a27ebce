// Package store is the authoritative record of Active campaigns, their pledges
// and the creations still awaiting a ledger outcome.
package store

import (
	"context"
	"time"

	"github.com/vishesh2305/DAAN/internal/campaign"
)

// Store persists lifecycle state. Implementations must be safe for concurrent use.
type Store interface {
	// Activate records a ledger-confirmed campaign. Activating an id that is
	// already stored is a no-op.
	Activate(ctx context.Context, c *campaign.Campaign) error
	// GetCampaign returns errno.ErrCampaignNotFound for unknown ids.
	GetCampaign(ctx context.Context, id campaign.ID) (*campaign.Campaign, error)
	// FindByNonce returns the campaign created by the request nonce.
	FindByNonce(ctx context.Context, nonce string) (*campaign.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*campaign.Campaign, error)
	// ListExpiredUnclaimed scans for campaigns strictly past their deadline and not yet claimed.
	ListExpiredUnclaimed(ctx context.Context, now time.Time) ([]*campaign.Campaign, error)

	// AppendPledge adds a confirmed pledge and recomputes the amount collected.
	// applied is false when the ledger ref was already recorded.
	AppendPledge(ctx context.Context, p campaign.Pledge) (applied bool, err error)
	// ListPledges returns pledges in the order they were recorded.
	ListPledges(ctx context.Context, id campaign.ID) ([]campaign.Pledge, error)

	// MarkClaimed flips the claimed flag once; a second call returns errno.ErrAlreadyClaimed.
	MarkClaimed(ctx context.Context, r campaign.Receipt) error

	SavePending(ctx context.Context, p campaign.PendingSubmission) error
	// ListPending returns submissions still in PendingOpen.
	ListPending(ctx context.Context) ([]campaign.PendingSubmission, error)
	ResolvePending(ctx context.Context, nonce string, status campaign.PendingStatus, id *campaign.ID, lastErr string) error
}

// ledgerNonce names campaigns that were found on the ledger rather than created here.
func ledgerNonce(id campaign.ID) string {
	return "ledger:" + id.String()
}
