package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

type batchCreator interface {
	CreateBatch(ctx context.Context, trades []domain.Trade) ([]domain.Trade, error)
}

// ReadTradeInputs decodes a broker report export, either a list of rows or {"trades": [...]}.
func ReadTradeInputs(r io.Reader) ([]domain.TradeInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read trades")
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidTrade, "no trades")
	}

	var inputs []domain.TradeInput
	if data[0] == '[' {
		err = json.Unmarshal(data, &inputs)
	} else {
		var wrapped struct {
			Trades []domain.TradeInput `json:"trades"`
		}
		err = json.Unmarshal(data, &wrapped)
		inputs = wrapped.Trades
	}
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidTrade, "decode trades: %v", err)
	}

	return inputs, nil
}

// ImportTrades validates every row and stores them as a single batch owned by userID.
func ImportTrades(ctx context.Context, store batchCreator, userID int64, inputs []domain.TradeInput) ([]domain.Trade, error) {
	if userID == 0 {
		return nil, errors.New("ledger owner is not configured, set MY_TELEGRAM_ID")
	}

	batch, err := domain.TradesFromInputs(inputs, userID)
	if err != nil {
		return nil, err
	}

	created, err := store.CreateBatch(ctx, batch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store trades")
	}
	return created, nil
}
