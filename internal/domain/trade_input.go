package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidTrade is returned when an externally submitted trade is malformed.
var ErrInvalidTrade = errors.New("invalid trade")

// Side values used by the broker report.
const (
	SideBuy  = 1
	SideSell = 2
)

// FeeValue is a broker report money cell.
type FeeValue struct {
	Value string `json:"value"`
}

// TradeInput is a single row of a broker report as submitted over HTTP or imported from a file.
// Every field is required; numbers arrive as strings the way the report exports them.
type TradeInput struct {
	SecCode      string    `json:"secCode"`
	Price        string    `json:"price1"`
	Quantity     string    `json:"quantity"`
	CurrencyCode string    `json:"currencyCode"`
	Date         string    `json:"date1"`
	Side         int       `json:"side"`
	BrokerFee    *FeeValue `json:"tsCommission"`
	BankFee      *FeeValue `json:"bankCommission"`
}

// Trade validates the row and converts it into a Trade owned by userID.
func (in TradeInput) Trade(userID int64) (Trade, error) {
	secCode := strings.ToUpper(strings.TrimSpace(in.SecCode))
	if secCode == "" {
		return Trade{}, errors.Wrap(ErrInvalidTrade, "secCode is required")
	}
	if strings.TrimSpace(in.CurrencyCode) == "" {
		return Trade{}, errors.Wrap(ErrInvalidTrade, "currencyCode is required")
	}
	if in.BrokerFee == nil || in.BankFee == nil {
		return Trade{}, errors.Wrap(ErrInvalidTrade, "tsCommission and bankCommission are required")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(in.Price))
	if err != nil {
		return Trade{}, errors.Wrapf(ErrInvalidTrade, "price1 %q is not a decimal", in.Price)
	}
	if !price.IsPositive() {
		return Trade{}, errors.Wrapf(ErrInvalidTrade, "price1 must be positive, got %s", price.String())
	}

	quantity, err := strconv.ParseInt(strings.TrimSpace(in.Quantity), 10, 64)
	if err != nil {
		return Trade{}, errors.Wrapf(ErrInvalidTrade, "quantity %q is not an integer", in.Quantity)
	}
	if quantity <= 0 {
		return Trade{}, errors.Wrapf(ErrInvalidTrade, "quantity must be positive, got %d", quantity)
	}

	switch in.Side {
	case SideBuy:
	case SideSell:
		quantity = -quantity
	default:
		return Trade{}, errors.Wrapf(ErrInvalidTrade, "side must be %d or %d, got %d", SideBuy, SideSell, in.Side)
	}

	date, err := parseTradeDate(in.Date)
	if err != nil {
		return Trade{}, errors.Wrapf(ErrInvalidTrade, "date1 %q: %v", in.Date, err)
	}

	brokerFee, err := parseFee("tsCommission", in.BrokerFee)
	if err != nil {
		return Trade{}, err
	}
	bankFee, err := parseFee("bankCommission", in.BankFee)
	if err != nil {
		return Trade{}, err
	}

	return Trade{
		UserID:       userID,
		SecCode:      secCode,
		Price:        price,
		Quantity:     quantity,
		CurrencyCode: strings.ToUpper(strings.TrimSpace(in.CurrencyCode)),
		Date:         date,
		Commission: Commission{
			BrokerCommission: brokerFee,
			BankCommission:   bankFee,
		},
	}, nil
}

// TradesFromInputs validates a whole batch. A single bad row rejects the batch.
func TradesFromInputs(inputs []TradeInput, userID int64) ([]Trade, error) {
	if len(inputs) == 0 {
		return nil, errors.Wrap(ErrInvalidTrade, "empty batch")
	}

	trades := make([]Trade, 0, len(inputs))
	for i, in := range inputs {
		t, err := in.Trade(userID)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		trades = append(trades, t)
	}

	return trades, nil
}

var tradeDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly}

func parseTradeDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range tradeDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unsupported date format")
}

func parseFee(name string, fee *FeeValue) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(fee.Value))
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidTrade, "%s %q is not a decimal", name, fee.Value)
	}
	if value.IsNegative() {
		return decimal.Zero, errors.Wrapf(ErrInvalidTrade, "%s must not be negative, got %s", name, value.String())
	}
	return value, nil
}
