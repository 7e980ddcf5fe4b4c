package id

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/model"
)

// EtherDecimals is the precision of ETH and WETH.
const EtherDecimals = 18

// ParseDecimal parses a positive decimal amount like "0.25".
func ParseDecimal(input, field string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is required", field))
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a decimal number like 1.25", field))
	}
	return d, nil
}

// ToBaseUnits converts a decimal amount into integer base units. Precision
// beyond decimals is rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	if amount.IsNegative() {
		return nil, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount precision exceeds %d decimals", decimals))
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits renders base units as a trimmed decimal.
func FromBaseUnits(baseUnits *big.Int, decimals int) decimal.Decimal {
	if baseUnits == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(baseUnits, -int32(decimals))
}

// ParseBaseUnits accepts an integer string as returned by the marketplace.
func ParseBaseUnits(input string) (*big.Int, error) {
	raw := strings.TrimSpace(input)
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("invalid base-unit amount: %q", input))
	}
	return n, nil
}

// NewPrice builds a model.Price from exact base units.
func NewPrice(currency string, baseUnits *big.Int, decimals int) model.Price {
	if baseUnits == nil {
		baseUnits = new(big.Int)
	}
	return model.Price{
		Currency:        currency,
		AmountBaseUnits: baseUnits.String(),
		AmountDecimal:   FromBaseUnits(baseUnits, decimals).String(),
		Decimals:        decimals,
	}
}

// PriceDecimal reads a model.Price back into a decimal.
func PriceDecimal(p model.Price) (decimal.Decimal, error) {
	n, err := ParseBaseUnits(p.AmountBaseUnits)
	if err != nil {
		return decimal.Zero, err
	}
	return FromBaseUnits(n, p.Decimals), nil
}

// ApplyPercent returns base * (1 + pct/100), truncated to decimals.
func ApplyPercent(base decimal.Decimal, pct decimal.Decimal, decimals int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
	return base.Mul(factor).Truncate(int32(decimals))
}

// BasisPoints returns amount * bps / 10000 in integer base units, rounded down.
func BasisPoints(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10_000))
}
