package domain

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// Position is the aggregated holding of a single ticker.
type Position struct {
	SecCode     string           `json:"secCode"`
	Quantity    int64            `json:"quantity"`
	Cost        decimal.Decimal  `json:"cost"`
	AvgBuyPrice decimal.Decimal  `json:"avgBuyPrice"`
	ClosePrice  *decimal.Decimal `json:"closePrice,omitempty"`
}

// MarkPrice returns the close price when known and the average buy price otherwise.
func (p Position) MarkPrice() decimal.Decimal {
	if p.ClosePrice != nil {
		return *p.ClosePrice
	}
	return p.AvgBuyPrice
}

// WithClosePrice returns a copy of the position marked to the given close price.
func (p Position) WithClosePrice(price decimal.Decimal) Position {
	p.ClosePrice = &price
	return p
}

// Portfolio maps tickers to positions and iterates them in ascending ticker order.
type Portfolio struct {
	positions map[string]Position
	tickers   []string
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{positions: make(map[string]Position)}
}

// Upsert inserts or replaces the position for its ticker.
func (p *Portfolio) Upsert(pos Position) {
	if _, ok := p.positions[pos.SecCode]; !ok {
		i := sort.SearchStrings(p.tickers, pos.SecCode)
		p.tickers = append(p.tickers, "")
		copy(p.tickers[i+1:], p.tickers[i:])
		p.tickers[i] = pos.SecCode
	}
	p.positions[pos.SecCode] = pos
}

// Get returns the position for the ticker.
func (p *Portfolio) Get(ticker string) (Position, bool) {
	if p == nil {
		return Position{}, false
	}
	pos, ok := p.positions[ticker]
	return pos, ok
}

// Tickers returns the tickers in ascending order.
func (p *Portfolio) Tickers() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.tickers))
	copy(out, p.tickers)
	return out
}

// Positions returns the positions in ascending ticker order.
func (p *Portfolio) Positions() []Position {
	if p == nil {
		return nil
	}
	out := make([]Position, 0, len(p.tickers))
	for _, t := range p.tickers {
		out = append(out, p.positions[t])
	}
	return out
}

// Len returns the number of positions.
func (p *Portfolio) Len() int {
	if p == nil {
		return 0
	}
	return len(p.tickers)
}

// Clone returns an independent copy.
func (p *Portfolio) Clone() *Portfolio {
	c := NewPortfolio()
	if p == nil {
		return c
	}
	for _, pos := range p.Positions() {
		if pos.ClosePrice != nil {
			pos = pos.WithClosePrice(*pos.ClosePrice)
		}
		c.Upsert(pos)
	}
	return c
}

// MarshalJSON encodes the portfolio as an object with keys in ascending ticker order.
func (p *Portfolio) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pos := range p.Positions() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(pos.SecCode)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(pos)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of positions keyed by ticker.
func (p *Portfolio) UnmarshalJSON(data []byte) error {
	var raw map[string]Position
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = *NewPortfolio()
	for ticker, pos := range raw {
		pos.SecCode = ticker
		p.Upsert(pos)
	}
	return nil
}
