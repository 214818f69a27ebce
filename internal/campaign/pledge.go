package campaign

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pledge is one confirmed donation. Pledges are never merged, even from the same donor.
type Pledge struct {
	CampaignID  ID
	Donor       string
	Amount      decimal.Decimal
	LedgerRef   string
	ConfirmedAt time.Time
}

// LedgerRef names the index-th entry of a campaign's donor list on the ledger.
// The list is append-only, so the position is a stable idempotency key.
func LedgerRef(id ID, index int) string {
	return fmt.Sprintf("%d:%d", uint64(id), index)
}

// DonorTotal aggregates the pledges of one donor for display.
type DonorTotal struct {
	Donor   string          `json:"donor"`
	Amount  decimal.Decimal `json:"amount"`
	Pledges int             `json:"pledges"`
}

// Totals sums pledges and groups them per donor, largest first.
func Totals(pledges []Pledge) (decimal.Decimal, []DonorTotal) {
	sum := decimal.Zero
	byDonor := make(map[string]*DonorTotal)
	var order []string

	for _, p := range pledges {
		sum = sum.Add(p.Amount)
		key := strings.ToLower(p.Donor)
		t, ok := byDonor[key]
		if !ok {
			t = &DonorTotal{Donor: p.Donor, Amount: decimal.Zero}
			byDonor[key] = t
			order = append(order, key)
		}
		t.Amount = t.Amount.Add(p.Amount)
		t.Pledges++
	}

	out := make([]DonorTotal, 0, len(order))
	for _, k := range order {
		out = append(out, *byDonor[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return sum, out
}
