package market

import (
	"strings"

	"github.com/example/market-engine/internal/domain/item"
	"github.com/shopspring/decimal"
)

// PriceGuide appraises items from a fixed per-unit price list keyed by
// material. Materials are matched case-insensitively.
type PriceGuide map[string]decimal.Decimal

func (g PriceGuide) Appraise(stack item.Stack) (decimal.Decimal, bool) {
	unit, ok := g[strings.ToUpper(stack.Material)]
	if !ok || stack.Quantity <= 0 {
		return decimal.Zero, false
	}
	return unit.Mul(decimal.NewFromInt(int64(stack.Quantity))), true
}

// ParsePriceGuide builds a guide from material -> unit price strings.
func ParsePriceGuide(raw map[string]string) (PriceGuide, error) {
	g := make(PriceGuide, len(raw))
	for material, price := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(price))
		if err != nil {
			return nil, err
		}
		g[strings.ToUpper(strings.TrimSpace(material))] = d
	}
	return g, nil
}
