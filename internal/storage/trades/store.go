// Package trades persists the append-only trade ledger.
package trades

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

// ErrNotFound is returned when a trade id does not exist.
var ErrNotFound = errors.New("trade not found")

// Store is the trade ledger.
type Store interface {
	// List returns trades of the user ordered by date, oldest first.
	List(ctx context.Context, userID int64) ([]domain.Trade, error)
	// Create stores a single trade and returns it with its assigned id.
	Create(ctx context.Context, trade domain.Trade) (domain.Trade, error)
	// CreateBatch stores all trades or none of them.
	CreateBatch(ctx context.Context, trades []domain.Trade) ([]domain.Trade, error)
	// Delete removes the trade by id. Trades of other users are reported as ErrNotFound.
	Delete(ctx context.Context, userID int64, id string) error
	Close(ctx context.Context) error
}

// record is the stored representation of a trade. Decimals are kept as strings to avoid
// float rounding in the storage layer.
type record struct {
	ID               string    `json:"id" bson:"_id"`
	UserID           int64     `json:"userId" bson:"userId"`
	SecCode          string    `json:"secCode" bson:"secCode"`
	Price            string    `json:"price" bson:"price"`
	Quantity         int64     `json:"quantity" bson:"quantity"`
	CurrencyCode     string    `json:"currencyCode" bson:"currencyCode"`
	Date             time.Time `json:"date" bson:"date"`
	BrokerCommission string    `json:"tsCommission" bson:"tsCommission"`
	BankCommission   string    `json:"bankCommission" bson:"bankCommission"`
}

func newRecord(t domain.Trade) record {
	return record{
		ID:               t.ID,
		UserID:           t.UserID,
		SecCode:          t.SecCode,
		Price:            t.Price.String(),
		Quantity:         t.Quantity,
		CurrencyCode:     t.CurrencyCode,
		Date:             t.Date.UTC(),
		BrokerCommission: t.Commission.BrokerCommission.String(),
		BankCommission:   t.Commission.BankCommission.String(),
	}
}

func (r record) trade() (domain.Trade, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Trade{}, errors.Wrapf(err, "decode price of trade %s", r.ID)
	}

	broker, err := decodeFee(r.BrokerCommission)
	if err != nil {
		return domain.Trade{}, errors.Wrapf(err, "decode broker commission of trade %s", r.ID)
	}
	bank, err := decodeFee(r.BankCommission)
	if err != nil {
		return domain.Trade{}, errors.Wrapf(err, "decode bank commission of trade %s", r.ID)
	}

	return domain.Trade{
		ID:           r.ID,
		UserID:       r.UserID,
		SecCode:      r.SecCode,
		Price:        price,
		Quantity:     r.Quantity,
		CurrencyCode: r.CurrencyCode,
		Date:         r.Date,
		Commission: domain.Commission{
			BrokerCommission: broker,
			BankCommission:   bank,
		},
	}, nil
}

func decodeFee(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func withID(t domain.Trade) domain.Trade {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t
}
