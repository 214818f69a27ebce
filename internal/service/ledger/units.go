package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var weiPerEth = decimal.New(1, 18)

// ToWei converts an ETH amount to the ledger's base unit, truncating below one wei.
func ToWei(eth decimal.Decimal) *big.Int {
	return eth.Mul(weiPerEth).BigInt()
}

// FromWei converts a base-unit amount to ETH.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}
