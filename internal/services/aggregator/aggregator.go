// Package aggregator folds a trade ledger into per-ticker positions.
package aggregator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

type precisioner interface {
	Precision(ticker string) int32
}

// Result of an aggregation pass.
type Result struct {
	// Portfolio open positions in ascending ticker order.
	Portfolio *domain.Portfolio
	// Closed tickers whose net quantity is zero, ascending. They have no average price and are left out of Portfolio.
	Closed []string
}

type stats struct {
	cost     decimal.Decimal
	quantity int64
}

// Aggregate replays the whole ledger. The result does not depend on trade order.
func Aggregate(trades []domain.Trade, precision precisioner) Result {
	groups := make(map[string]*stats)
	for _, t := range trades {
		s, ok := groups[t.SecCode]
		if !ok {
			s = &stats{cost: decimal.Zero}
			groups[t.SecCode] = s
		}
		s.cost = s.cost.Add(t.Cost())
		s.quantity += t.Quantity
	}

	tickers := make([]string, 0, len(groups))
	for ticker := range groups {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	res := Result{Portfolio: domain.NewPortfolio()}
	for _, ticker := range tickers {
		s := groups[ticker]
		if s.quantity == 0 {
			res.Closed = append(res.Closed, ticker)
			continue
		}

		avg := s.cost.Div(decimal.NewFromInt(s.quantity)).Round(precision.Precision(ticker))
		res.Portfolio.Upsert(domain.Position{
			SecCode:     ticker,
			Quantity:    s.quantity,
			Cost:        s.cost,
			AvgBuyPrice: avg,
		})
	}

	return res
}
