package ledger

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWeiConversion(t *testing.T) {
	tests := []struct {
		eth string
		wei string
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{"2.000000000000000001", "2000000000000000001"},
		{"0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.eth, func(t *testing.T) {
			wei := ToWei(decimal.RequireFromString(tt.eth))
			assert.Equal(t, tt.wei, wei.String())

			back := FromWei(wei)
			assert.True(t, back.Equal(decimal.RequireFromString(tt.eth)), "got %s", back)
		})
	}

	assert.Equal(t, "0", ToWei(decimal.RequireFromString("0.0000000000000000001")).String())
	assert.True(t, FromWei(nil).IsZero())
	assert.True(t, FromWei(big.NewInt(1)).Equal(decimal.New(1, -18)))
}
