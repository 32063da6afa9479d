// Package domain defines core data structures used throughout the portfolio tracker.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Commission fees attached to a trade.
type Commission struct {
	// BrokerCommission trading system (broker) fee.
	BrokerCommission decimal.Decimal `json:"tsCommission"`
	// BankCommission bank fee.
	BankCommission decimal.Decimal `json:"bankCommission"`
}

// Total returns the sum of all fees.
func (c Commission) Total() decimal.Decimal {
	return c.BrokerCommission.Add(c.BankCommission)
}

// Trade is an immutable record of a single executed trade.
type Trade struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"userId"`
	SecCode      string          `json:"secCode"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"` // negative for sells
	CurrencyCode string          `json:"currencyCode"`
	Date         time.Time       `json:"date"`
	Commission   Commission      `json:"commission"`
}

// Cost returns price*quantity plus all fees. Fees are added for sells too.
func (t Trade) Cost() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity)).Add(t.Commission.Total())
}

// String returns a human-readable string representation.
func (t Trade) String() string {
	return fmt.Sprintf("%s qty: %d price: %s date: %s", t.SecCode, t.Quantity, t.Price.String(), t.Date.Format(time.DateOnly))
}

// LastTradeDate returns the latest trade date, zero time for an empty ledger.
func LastTradeDate(trades []Trade) time.Time {
	var last time.Time
	for _, t := range trades {
		if t.Date.After(last) {
			last = t.Date
		}
	}
	return last
}
