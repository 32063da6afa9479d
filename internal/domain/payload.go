package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Diff day-over-day valuation change. Relative is nil when the ratio is undefined.
type Diff struct {
	Absolute decimal.Decimal  `json:"absolute"`
	Relative *decimal.Decimal `json:"relative"`
}

// TickerChange close price of a ticker and its change against the average buy price, in percent.
type TickerChange struct {
	Ticker     string          `json:"ticker"`
	ClosePrice decimal.Decimal `json:"closePrice"`
	Change     decimal.Decimal `json:"change"`
}

// InitialDataPayload cost basis snapshot of the portfolio.
type InitialDataPayload struct {
	LastUpdated   time.Time       `json:"lastUpdated"`
	Portfolio     *Portfolio      `json:"portfolio"`
	TotalBuyPrice decimal.Decimal `json:"totalBuyPrice"`
}

// LatestInfoPayload valuation of the portfolio against the last trading session.
type LatestInfoPayload struct {
	Changes    Diff            `json:"changes"`
	Date       time.Time       `json:"date"`
	Portfolio  []TickerChange  `json:"portfolio"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// PayloadKind discriminates payloads published to subscribers.
type PayloadKind string

const (
	PayloadInitialData PayloadKind = "initial_data"
	PayloadLatestInfo  PayloadKind = "latest_info"
)

// Event is a payload published by the orchestrator. Exactly one of the payload fields is set.
// Source names the trigger that produced it, see WithSource.
type Event struct {
	Kind        PayloadKind         `json:"kind"`
	Timestamp   time.Time           `json:"ts"`
	Source      string              `json:"source,omitempty"`
	InitialData *InitialDataPayload `json:"initialData,omitempty"`
	LatestInfo  *LatestInfoPayload  `json:"latestInfo,omitempty"`
}

// NewInitialDataEvent wraps the payload into an event.
func NewInitialDataEvent(ts time.Time, p InitialDataPayload) Event {
	return Event{Kind: PayloadInitialData, Timestamp: ts, InitialData: &p}
}

// NewLatestInfoEvent wraps the payload into an event.
func NewLatestInfoEvent(ts time.Time, p LatestInfoPayload) Event {
	return Event{Kind: PayloadLatestInfo, Timestamp: ts, LatestInfo: &p}
}

// ValuationRecord bundles a journaled valuation with its journal index.
type ValuationRecord struct {
	Index     uint64
	Valuation LatestInfoPayload
}
