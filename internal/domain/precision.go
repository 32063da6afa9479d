package domain

import "strings"

// DefaultPrecision decimal places used for average buy price rounding of unlisted tickers.
const DefaultPrecision int32 = 2

// PrecisionTable maps tickers to the number of decimal places of their average buy price.
type PrecisionTable map[string]int32

// DefaultPrecisionTable returns the built-in table for low-priced shares.
func DefaultPrecisionTable() PrecisionTable {
	return PrecisionTable{
		"VTBR": 5,
		"FEES": 5,
		"HYDR": 4,
	}
}

// Merge returns a copy of the table with overrides applied on top.
func (t PrecisionTable) Merge(overrides map[string]int32) PrecisionTable {
	out := make(PrecisionTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// Precision returns decimal places for the ticker.
func (t PrecisionTable) Precision(ticker string) int32 {
	if p, ok := t[ticker]; ok {
		return p
	}
	return DefaultPrecision
}
