package domain

import "github.com/shopspring/decimal"

// TradingRange first and last dates with available trading history, formatted YYYY-MM-DD.
type TradingRange struct {
	From string `json:"from"`
	Till string `json:"till"`
}

// MarketSnapshot daily history row of a single ticker.
type MarketSnapshot struct {
	SecID          string          `json:"secId"`
	BoardID        string          `json:"boardId"`
	ShortName      string          `json:"shortName"`
	TradeDate      string          `json:"tradeDate"`
	NumTrades      int64           `json:"numTrades"`
	Value          decimal.Decimal `json:"value"`
	Open           decimal.Decimal `json:"open"`
	Low            decimal.Decimal `json:"low"`
	High           decimal.Decimal `json:"high"`
	ClosePrice     decimal.Decimal `json:"closePrice"` // LEGALCLOSEPRICE
	WAPrice        decimal.Decimal `json:"waPrice"`
	Close          decimal.Decimal `json:"close"`
	Volume         int64           `json:"volume"`
	TradingSession int             `json:"tradingSession"`
}
