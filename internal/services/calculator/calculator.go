// Package calculator provides valuation math over positions and trades.
// All results are rounded half away from zero to two decimals.
package calculator

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const displayPlaces = 2

// ErrUndefinedRatio is returned when a ratio would divide by zero.
var ErrUndefinedRatio = errors.New("undefined ratio: division by zero")

var hundred = decimal.NewFromInt(100)

// PercentChange returns (1 - buy/close) * 100.
func PercentChange(buyPrice, closePrice decimal.Decimal) (decimal.Decimal, error) {
	if closePrice.IsZero() {
		return decimal.Zero, errors.Wrapf(ErrUndefinedRatio, "close price is zero (buy price %s)", buyPrice.String())
	}
	return relative(buyPrice, closePrice), nil
}

// TotalValue marks every position to its close price, falling back to the average buy price.
func TotalValue(positions []domain.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.MarkPrice().Mul(decimal.NewFromInt(p.Quantity)))
	}
	return total.Round(displayPlaces)
}

// InitialCost is the flat cost of the whole ledger including commissions.
func InitialCost(trades []domain.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.Cost())
	}
	return total.Round(displayPlaces)
}

// DayDiff compares the buy total with the new total. Relative is computed as (1 - old/new) * 100.
// When newTotal is zero the absolute change is still returned along with ErrUndefinedRatio.
func DayDiff(totalBuyPrice, newTotalPrice decimal.Decimal) (domain.Diff, error) {
	diff := domain.Diff{Absolute: newTotalPrice.Sub(totalBuyPrice).Round(displayPlaces)}
	if newTotalPrice.IsZero() {
		return diff, errors.Wrap(ErrUndefinedRatio, "new total price is zero")
	}

	rel := relative(totalBuyPrice, newTotalPrice)
	diff.Relative = &rel
	return diff, nil
}

func relative(buy, current decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(buy.Div(current)).Mul(hundred).Round(displayPlaces)
}
