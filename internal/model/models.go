package model

import (
	"time"

	"gorm.io/gorm"
)

// Campaign is an Active campaign. The id is the ledger's, never auto-incremented.
type Campaign struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Nonce           string     `gorm:"type:varchar(64);uniqueIndex" json:"nonce"`
	Owner           string     `gorm:"type:varchar(64);not null;index" json:"owner"`
	Title           string     `gorm:"type:varchar(255);not null" json:"title"`
	Description     string     `gorm:"type:text;not null" json:"description"`
	Target          Amount     `gorm:"not null" json:"target"`
	Deadline        time.Time  `gorm:"not null;index" json:"deadline"`
	Image           string     `gorm:"type:varchar(1024)" json:"image"`
	Category        string     `gorm:"type:varchar(64)" json:"category"`
	AmountCollected Amount     `gorm:"not null;default:0" json:"amount_collected"`
	Claimed         bool       `gorm:"not null;default:false;index" json:"claimed"`
	ClaimTxHash     string     `gorm:"type:varchar(80)" json:"claim_tx_hash"`
	ClaimAmount     Amount     `gorm:"not null;default:0" json:"claim_amount"`
	ClaimedBy       string     `gorm:"type:varchar(64)" json:"claimed_by"`
	ClaimedAt       *time.Time `json:"claimed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Pledge is one confirmed donation; ledger_ref makes replays no-ops.
type Pledge struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID  uint64    `gorm:"not null;index" json:"campaign_id"`
	Donor       string    `gorm:"type:varchar(64);not null" json:"donor"`
	Amount      Amount    `gorm:"not null" json:"amount"`
	LedgerRef   string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"ledger_ref"`
	ConfirmedAt time.Time `gorm:"not null" json:"confirmed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingSubmission is a creation whose ledger outcome is not known yet.
type PendingSubmission struct {
	Nonce       string    `gorm:"primaryKey;type:varchar(64)" json:"nonce"`
	Owner       string    `gorm:"type:varchar(64);not null" json:"owner"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Target      Amount    `gorm:"not null" json:"target"`
	Deadline    time.Time `gorm:"not null" json:"deadline"`
	Image       string    `gorm:"type:varchar(1024)" json:"image"`
	Category    string    `gorm:"type:varchar(64)" json:"category"`
	Status      string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"` // pending, resolved, abandoned
	CampaignID  *uint64   `json:"campaign_id"`
	LastError   string    `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OutboxMessage is the transactional outbox relayed to the message queue.
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(128)" json:"key"`
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Campaign) TableName() string          { return "campaigns" }
func (Pledge) TableName() string            { return "pledges" }
func (PendingSubmission) TableName() string { return "pending_submissions" }
func (OutboxMessage) TableName() string     { return "outbox_messages" }
