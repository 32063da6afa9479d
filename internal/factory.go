package internal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/config"
	"github.com/vadiminshakov/moexfolio/internal/storage/trades"
)

// NewTradeStore opens the trade ledger selected by the store driver.
func NewTradeStore(ctx context.Context, l *zap.Logger, cfg config.Store) (trades.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverMongo:
		return trades.NewMongoStore(ctx, l, cfg.MongoURI, cfg.Database)
	case config.DriverFile:
		return trades.NewFileStore(cfg.Path)
	case config.DriverMemory:
		l.Warn("using in-memory trade store, trades are lost on exit")
		return trades.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
