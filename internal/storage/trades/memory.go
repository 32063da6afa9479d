package trades

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	trades []domain.Trade
}

// NewMemoryStore creates a store seeded with trades.
func NewMemoryStore(seed ...domain.Trade) *MemoryStore {
	s := &MemoryStore{}
	for _, t := range seed {
		s.trades = append(s.trades, withID(t))
	}
	return s
}

func (s *MemoryStore) List(_ context.Context, userID int64) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sortByDate(out)

	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, trade domain.Trade) (domain.Trade, error) {
	trade = withID(trade)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, trade)
	return trade, nil
}

func (s *MemoryStore) CreateBatch(_ context.Context, trades []domain.Trade) ([]domain.Trade, error) {
	if len(trades) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidTrade, "empty batch")
	}

	out := make([]domain.Trade, len(trades))
	for i, t := range trades {
		out[i] = withID(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, out...)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.trades {
		if t.ID == id && t.UserID == userID {
			s.trades = append(s.trades[:i], s.trades[i+1:]...)
			return nil
		}
	}

	return errors.Wrapf(ErrNotFound, "id %s", id)
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

func sortByDate(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Date.Before(trades[j].Date)
	})
}
