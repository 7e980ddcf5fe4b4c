package app

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
)

var hundred = decimal.NewFromInt(100)

// computeGaps pairs adjacent listings in price order and keeps the steps of
// at least minGapPct percent, largest first. Pairs quoted in different
// currencies are skipped. top <= 0 keeps every gap.
func computeGaps(listings []model.Listing, minGapPct decimal.Decimal, top int) ([]model.Gap, error) {
	type priced struct {
		listing model.Listing
		wei     *big.Int
	}
	items := make([]priced, 0, len(listings))
	for _, l := range listings {
		v, err := id.ParseBaseUnits(l.Price.AmountBaseUnits)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("listing %s has an invalid price", l.OrderHash), err)
		}
		items = append(items, priced{listing: l, wei: v})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].wei.Cmp(items[j].wei) < 0 })

	type candidate struct {
		gap model.Gap
		pct decimal.Decimal
	}
	found := []candidate{}
	for i := 0; i+1 < len(items); i++ {
		lower, upper := items[i], items[i+1]
		if lower.listing.Price.Currency != upper.listing.Price.Currency || lower.wei.Sign() <= 0 {
			continue
		}
		diff := new(big.Int).Sub(upper.wei, lower.wei)
		pct := decimal.NewFromBigInt(diff, 0).Div(decimal.NewFromBigInt(lower.wei, 0)).Mul(hundred).Round(2)
		if pct.LessThan(minGapPct) {
			continue
		}
		found = append(found, candidate{
			pct: pct,
			gap: model.Gap{
				Lower:     lower.listing,
				Upper:     upper.listing,
				GapPct:    pct.StringFixed(2),
				GapAmount: id.NewPrice(lower.listing.Price.Currency, diff, lower.listing.Price.Decimals),
			},
		})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].pct.GreaterThan(found[j].pct) })
	if top > 0 && len(found) > top {
		found = found[:top]
	}
	gaps := make([]model.Gap, 0, len(found))
	for i, c := range found {
		c.gap.Rank = i + 1
		gaps = append(gaps, c.gap)
	}
	return gaps, nil
}
