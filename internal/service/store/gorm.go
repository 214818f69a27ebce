package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/event"
	"github.com/vishesh2305/DAAN/internal/model"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

// GormStore persists to Postgres or SQLite. Every state change writes its
// outbox event in the same transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Activate(ctx context.Context, c *campaign.Campaign) error {
	row := model.Campaign{
		ID:              uint64(c.ID),
		Nonce:           c.Nonce,
		Owner:           c.Owner,
		Title:           c.Title,
		Description:     c.Description,
		Target:          model.NewAmount(c.Target),
		Deadline:        c.Deadline.UTC(),
		Image:           c.Image,
		Category:        c.Category,
		AmountCollected: model.NewAmount(decimal.Zero),
		ClaimAmount:     model.NewAmount(decimal.Zero),
	}
	if row.Nonce == "" {
		row.Nonce = ledgerNonce(c.ID)
	}
	if !c.CreatedAt.IsZero() {
		row.CreatedAt = c.CreatedAt
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return model.CreateOutboxMessage(tx, event.TopicCampaignActivated, c.ID.String(), event.CampaignActivatedEvent{
			CampaignID: uint64(c.ID),
			Owner:      c.Owner,
			Title:      c.Title,
			Target:     c.Target.String(),
			Deadline:   c.Deadline.Unix(),
			Category:   c.Category,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: activate campaign %d: %w", errno.ErrDatabase, c.ID, err)
	}
	return nil
}

func (s *GormStore) GetCampaign(ctx context.Context, id campaign.ID) (*campaign.Campaign, error) {
	var row model.Campaign
	if err := s.db.WithContext(ctx).First(&row, uint64(id)).Error; err != nil {
		return nil, notFound(err)
	}
	return toCampaign(&row), nil
}

func (s *GormStore) FindByNonce(ctx context.Context, nonce string) (*campaign.Campaign, error) {
	var row model.Campaign
	if err := s.db.WithContext(ctx).Where("nonce = ?", nonce).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return toCampaign(&row), nil
}

func (s *GormStore) ListCampaigns(ctx context.Context) ([]*campaign.Campaign, error) {
	var rows []model.Campaign
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", errno.ErrDatabase, err)
	}
	return toCampaigns(rows), nil
}

func (s *GormStore) ListExpiredUnclaimed(ctx context.Context, now time.Time) ([]*campaign.Campaign, error) {
	var rows []model.Campaign
	err := s.db.WithContext(ctx).
		Where("claimed = ? AND deadline < ?", false, now.UTC()).
		Order("deadline").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errno.ErrDatabase, err)
	}
	return toCampaigns(rows), nil
}

func (s *GormStore) AppendPledge(ctx context.Context, p campaign.Pledge) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Campaign
		if err := tx.Select("id").First(&c, uint64(p.CampaignID)).Error; err != nil {
			return notFound(err)
		}

		row := model.Pledge{
			CampaignID:  uint64(p.CampaignID),
			Donor:       p.Donor,
			Amount:      model.NewAmount(p.Amount),
			LedgerRef:   p.LedgerRef,
			ConfirmedAt: p.ConfirmedAt.UTC(),
		}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ledger_ref"}}, DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		// amount_collected is always derived from the pledge rows
		var amounts []string
		if err := tx.Model(&model.Pledge{}).Where("campaign_id = ?", row.CampaignID).Pluck("amount", &amounts).Error; err != nil {
			return err
		}
		total := decimal.Zero
		for _, a := range amounts {
			d, err := decimal.NewFromString(a)
			if err != nil {
				return fmt.Errorf("pledge amount %q: %w", a, err)
			}
			total = total.Add(d)
		}
		if err := tx.Model(&model.Campaign{}).Where("id = ?", row.CampaignID).Update("amount_collected", model.NewAmount(total)).Error; err != nil {
			return err
		}

		return model.CreateOutboxMessage(tx, event.TopicPledgeRecorded, p.CampaignID.String(), event.PledgeRecordedEvent{
			CampaignID:      row.CampaignID,
			Donor:           row.Donor,
			Amount:          row.Amount.String(),
			LedgerRef:       row.LedgerRef,
			ConfirmedAt:     row.ConfirmedAt.Unix(),
			AmountCollected: total.String(),
		})
	})
	if err != nil {
		if errors.Is(err, errno.ErrCampaignNotFound) {
			return false, err
		}
		return false, fmt.Errorf("%w: append pledge %s: %w", errno.ErrDatabase, p.LedgerRef, err)
	}
	return applied, nil
}

func (s *GormStore) ListPledges(ctx context.Context, id campaign.ID) ([]campaign.Pledge, error) {
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return nil, err
	}
	var rows []model.Pledge
	if err := s.db.WithContext(ctx).Where("campaign_id = ?", uint64(id)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", errno.ErrDatabase, err)
	}
	out := make([]campaign.Pledge, 0, len(rows))
	for _, r := range rows {
		out = append(out, campaign.Pledge{
			CampaignID:  campaign.ID(r.CampaignID),
			Donor:       r.Donor,
			Amount:      r.Amount.Decimal,
			LedgerRef:   r.LedgerRef,
			ConfirmedAt: r.ConfirmedAt,
		})
	}
	return out, nil
}

func (s *GormStore) MarkClaimed(ctx context.Context, r campaign.Receipt) error {
	claimedAt := r.ClaimedAt.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// conditional update: only one caller can flip the flag
		res := tx.Model(&model.Campaign{}).
			Where("id = ? AND claimed = ?", uint64(r.CampaignID), false).
			Updates(map[string]interface{}{
				"claimed":       true,
				"claim_tx_hash": r.TxHash,
				"claim_amount":  model.NewAmount(r.Amount),
				"claimed_by":    r.ClaimedBy,
				"claimed_at":    claimedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("%w: %w", errno.ErrDatabase, res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&model.Campaign{}).Where("id = ?", uint64(r.CampaignID)).Count(&n).Error; err != nil {
				return fmt.Errorf("%w: %w", errno.ErrDatabase, err)
			}
			if n == 0 {
				return errno.ErrCampaignNotFound
			}
			return errno.ErrAlreadyClaimed
		}

		return model.CreateOutboxMessage(tx, event.TopicCampaignClaimed, r.CampaignID.String(), event.CampaignClaimedEvent{
			CampaignID: uint64(r.CampaignID),
			ClaimedBy:  r.ClaimedBy,
			Amount:     r.Amount.String(),
			TxHash:     r.TxHash,
			ClaimedAt:  claimedAt.Unix(),
		})
	})
}

func (s *GormStore) SavePending(ctx context.Context, p campaign.PendingSubmission) error {
	status := p.Status
	if status == "" {
		status = campaign.PendingOpen
	}
	row := model.PendingSubmission{
		Nonce:       p.Draft.Nonce,
		Owner:       p.Draft.Owner,
		Title:       p.Draft.Title,
		Description: p.Draft.Description,
		Target:      model.NewAmount(p.Draft.Target),
		Deadline:    p.Draft.Deadline.UTC(),
		Image:       p.Draft.Image,
		Category:    p.Draft.Category,
		Status:      string(status),
		LastError:   p.LastError,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "nonce"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: save pending %s: %w", errno.ErrDatabase, p.Draft.Nonce, err)
	}
	return nil
}

func (s *GormStore) ListPending(ctx context.Context) ([]campaign.PendingSubmission, error) {
	var rows []model.PendingSubmission
	err := s.db.WithContext(ctx).
		Where("status = ?", string(campaign.PendingOpen)).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errno.ErrDatabase, err)
	}
	out := make([]campaign.PendingSubmission, 0, len(rows))
	for _, r := range rows {
		p := campaign.PendingSubmission{
			Draft: campaign.Draft{
				Nonce:       r.Nonce,
				Owner:       r.Owner,
				Title:       r.Title,
				Description: r.Description,
				Target:      r.Target.Decimal,
				Deadline:    r.Deadline,
				Image:       r.Image,
				Category:    r.Category,
			},
			Status:    campaign.PendingStatus(r.Status),
			LastError: r.LastError,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
		if r.CampaignID != nil {
			p.CampaignID = campaign.ID(*r.CampaignID)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *GormStore) ResolvePending(ctx context.Context, nonce string, status campaign.PendingStatus, id *campaign.ID, lastErr string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"last_error": lastErr,
	}
	if id != nil {
		updates["campaign_id"] = uint64(*id)
	}
	res := s.db.WithContext(ctx).Model(&model.PendingSubmission{}).Where("nonce = ?", nonce).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: %w", errno.ErrDatabase, res.Error)
	}
	if res.RowsAffected == 0 {
		return errno.ErrCampaignNotFound.WithMessage("no pending submission " + nonce)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errno.ErrCampaignNotFound
	}
	if errors.Is(err, errno.ErrCampaignNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", errno.ErrDatabase, err)
}

func toCampaign(r *model.Campaign) *campaign.Campaign {
	c := &campaign.Campaign{
		ID:              campaign.ID(r.ID),
		Nonce:           r.Nonce,
		Owner:           r.Owner,
		Title:           r.Title,
		Description:     r.Description,
		Target:          r.Target.Decimal,
		Deadline:        r.Deadline,
		Image:           r.Image,
		Category:        r.Category,
		AmountCollected: r.AmountCollected.Decimal,
		Claimed:         r.Claimed,
		CreatedAt:       r.CreatedAt,
	}
	if r.Claimed {
		rc := campaign.Receipt{
			CampaignID: c.ID,
			TxHash:     r.ClaimTxHash,
			Amount:     r.ClaimAmount.Decimal,
			ClaimedBy:  r.ClaimedBy,
		}
		if r.ClaimedAt != nil {
			rc.ClaimedAt = *r.ClaimedAt
		}
		c.Receipt = &rc
	}
	return c
}

func toCampaigns(rows []model.Campaign) []*campaign.Campaign {
	out := make([]*campaign.Campaign, 0, len(rows))
	for i := range rows {
		out = append(out, toCampaign(&rows[i]))
	}
	return out
}
