package campaign

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vishesh2305/DAAN/pkg/errno"
)

func TestDraftValidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := Draft{
		Owner:       "0x40ceeEdE9fA9ee09e594aFFb63CFc4994aF5B14e",
		Title:       "Community Garden",
		Description: "Raised beds for the neighbourhood.",
		Target:      decimal.NewFromInt(5),
		Deadline:    now.Add(24 * time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(d *Draft)
		wantErr bool
	}{
		{"valid", func(d *Draft) {}, false},
		{"missing title", func(d *Draft) { d.Title = "  " }, true},
		{"missing description", func(d *Draft) { d.Description = "" }, true},
		{"zero target", func(d *Draft) { d.Target = decimal.Zero }, true},
		{"negative target", func(d *Draft) { d.Target = decimal.NewFromInt(-1) }, true},
		{"deadline now", func(d *Draft) { d.Deadline = now }, true},
		{"missing owner", func(d *Draft) { d.Owner = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := d.Validate(now)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errno.ErrValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCampaignStateIsStrictAtDeadline(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &Campaign{Deadline: deadline}

	assert.Equal(t, StateActive, c.State(deadline.Add(-time.Second)))
	assert.Equal(t, StateActive, c.State(deadline))
	assert.Equal(t, StateExpired, c.State(deadline.Add(time.Second)))

	c.Claimed = true
	assert.Equal(t, StateClaimed, c.State(deadline.Add(time.Second)))
}

func TestDedupKeyMatchesOwnerCaseInsensitively(t *testing.T) {
	d := Draft{Owner: "0xABCdef", Title: "Garden", Deadline: time.Unix(1700000000, 0)}
	k := d.Key()

	assert.True(t, k.Matches("0xabcDEF", "Garden", 1700000000))
	assert.False(t, k.Matches("0xabcdef", "garden", 1700000000))
	assert.False(t, k.Matches("0xabcdef", "Garden", 1700000001))
}

func TestTotalsGroupsDonors(t *testing.T) {
	pledges := []Pledge{
		{Donor: "0xAAA", Amount: decimal.NewFromInt(2)},
		{Donor: "0xbbb", Amount: decimal.NewFromInt(1)},
		{Donor: "0xaaa", Amount: decimal.RequireFromString("0.5")},
	}

	sum, donors := Totals(pledges)
	assert.True(t, sum.Equal(decimal.RequireFromString("3.5")))
	assert.Len(t, donors, 2)
	assert.Equal(t, "0xAAA", donors[0].Donor)
	assert.Equal(t, 2, donors[0].Pledges)
	assert.True(t, donors[0].Amount.Equal(decimal.RequireFromString("2.5")))
}

func TestNewViewProgress(t *testing.T) {
	now := time.Now()
	c := &Campaign{
		ID:              7,
		Target:          decimal.NewFromInt(5),
		AmountCollected: decimal.NewFromInt(3),
		Deadline:        now.Add(time.Hour),
		Receipt:         &Receipt{TxHash: "0xabc"},
	}

	v := NewView(c, 2, now)
	assert.Equal(t, "60.00", v.ProgressPercent)
	assert.Equal(t, StateActive, v.State)
	assert.Equal(t, "0xabc", v.ClaimTxHash)
	assert.Equal(t, 2, v.DonorCount)
}
