package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

var decimalHundred = decimal.NewFromInt(100)

// View is the display projection of a campaign at a point in time.
type View struct {
	ID              ID        `json:"id"`
	Owner           string    `json:"owner"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Image           string    `json:"image,omitempty"`
	Category        string    `json:"category,omitempty"`
	Target          string    `json:"target"`
	Deadline        time.Time `json:"deadline"`
	AmountCollected string    `json:"amount_collected"`
	DonorCount      int       `json:"donor_count"`
	ProgressPercent string    `json:"progress_percent"`
	State           State     `json:"state"`
	Claimed         bool      `json:"claimed"`
	ClaimTxHash     string    `json:"claim_tx_hash,omitempty"`
}

// NewView projects c with its donor count at now.
func NewView(c *Campaign, donorCount int, now time.Time) View {
	v := View{
		ID:              c.ID,
		Owner:           c.Owner,
		Title:           c.Title,
		Description:     c.Description,
		Image:           c.Image,
		Category:        c.Category,
		Target:          c.Target.String(),
		Deadline:        c.Deadline,
		AmountCollected: c.AmountCollected.String(),
		DonorCount:      donorCount,
		ProgressPercent: "0",
		State:           c.State(now),
		Claimed:         c.Claimed,
	}
	if c.Target.IsPositive() {
		v.ProgressPercent = c.AmountCollected.Mul(decimalHundred).Div(c.Target).StringFixed(2)
	}
	if c.Receipt != nil {
		v.ClaimTxHash = c.Receipt.TxHash
	}
	return v
}
