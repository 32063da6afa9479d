package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() TradeInput {
	return TradeInput{
		SecCode:      "sber",
		Price:        "250.5",
		Quantity:     "10",
		CurrencyCode: "rub",
		Date:         "2021-03-15T10:00:00Z",
		Side:         SideBuy,
		BrokerFee:    &FeeValue{Value: "1.25"},
		BankFee:      &FeeValue{Value: "0"},
	}
}

func TestTradeInput_Trade(t *testing.T) {
	trade, err := validInput().Trade(42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), trade.UserID)
	assert.Equal(t, "SBER", trade.SecCode)
	assert.Equal(t, "RUB", trade.CurrencyCode)
	assert.Equal(t, int64(10), trade.Quantity)
	assert.True(t, trade.Price.Equal(decimal.RequireFromString("250.5")))
	assert.True(t, trade.Commission.Total().Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC), trade.Date)
}

func TestTradeInput_SellIsNegative(t *testing.T) {
	in := validInput()
	in.Side = SideSell

	trade, err := in.Trade(1)
	require.NoError(t, err)
	assert.Equal(t, int64(-10), trade.Quantity)
}

func TestTradeInput_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *TradeInput)
	}{
		{name: "missing secCode", mutate: func(in *TradeInput) { in.SecCode = " " }},
		{name: "missing currency", mutate: func(in *TradeInput) { in.CurrencyCode = "" }},
		{name: "missing broker fee", mutate: func(in *TradeInput) { in.BrokerFee = nil }},
		{name: "missing bank fee", mutate: func(in *TradeInput) { in.BankFee = nil }},
		{name: "bad price", mutate: func(in *TradeInput) { in.Price = "abc" }},
		{name: "zero price", mutate: func(in *TradeInput) { in.Price = "0" }},
		{name: "fractional quantity", mutate: func(in *TradeInput) { in.Quantity = "1.5" }},
		{name: "zero quantity", mutate: func(in *TradeInput) { in.Quantity = "0" }},
		{name: "unknown side", mutate: func(in *TradeInput) { in.Side = 3 }},
		{name: "missing date", mutate: func(in *TradeInput) { in.Date = "" }},
		{name: "bad date", mutate: func(in *TradeInput) { in.Date = "15.03.2021" }},
		{name: "negative fee", mutate: func(in *TradeInput) { in.BankFee = &FeeValue{Value: "-1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := in.Trade(1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTrade))
		})
	}
}

func TestTradesFromInputs_RejectsWholeBatch(t *testing.T) {
	bad := validInput()
	bad.Side = 0

	_, err := TradesFromInputs([]TradeInput{validInput(), bad}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	_, err = TradesFromInputs(nil, 1)
	assert.True(t, errors.Is(err, ErrInvalidTrade))

	trades, err := TradesFromInputs([]TradeInput{validInput(), validInput()}, 1)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestTrade_CostAddsCommissionOnSells(t *testing.T) {
	trade := Trade{
		Price:    decimal.NewFromInt(100),
		Quantity: -5,
		Commission: Commission{
			BrokerCommission: decimal.NewFromInt(2),
			BankCommission:   decimal.NewFromInt(1),
		},
	}
	assert.True(t, trade.Cost().Equal(decimal.NewFromInt(-497)))
}

func TestLastTradeDate(t *testing.T) {
	d1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, d2, LastTradeDate([]Trade{{Date: d1}, {Date: d2}, {Date: d1}}))
	assert.True(t, LastTradeDate(nil).IsZero())
}
