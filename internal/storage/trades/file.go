package trades

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const defaultLedgerPath = "./data/trades.json"

// FileStore keeps the ledger in a single JSON file, rewritten atomically on every change.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type ledgerFile struct {
	Trades []record `json:"trades"`
}

// NewFileStore creates a file-backed store, creating the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = defaultLedgerPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger dir")
	}

	return &FileStore{path: path}, nil
}

func (s *FileStore) List(_ context.Context, userID int64) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Trade, 0, len(records))
	for _, r := range records {
		if r.UserID != userID {
			continue
		}
		t, err := r.trade()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sortByDate(out)

	return out, nil
}

func (s *FileStore) Create(ctx context.Context, trade domain.Trade) (domain.Trade, error) {
	out, err := s.CreateBatch(ctx, []domain.Trade{trade})
	if err != nil {
		return domain.Trade{}, err
	}
	return out[0], nil
}

func (s *FileStore) CreateBatch(_ context.Context, trades []domain.Trade) ([]domain.Trade, error) {
	if len(trades) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidTrade, "empty batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Trade, len(trades))
	for i, t := range trades {
		out[i] = withID(t)
		records = append(records, newRecord(out[i]))
	}

	if err := s.save(records); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *FileStore) Delete(_ context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	for i, r := range records {
		if r.ID == id && r.UserID == userID {
			return s.save(append(records[:i], records[i+1:]...))
		}
	}

	return errors.Wrapf(ErrNotFound, "id %s", id)
}

func (s *FileStore) Close(context.Context) error {
	return nil
}

func (s *FileStore) load() ([]record, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read ledger")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var f ledgerFile
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, errors.Wrap(err, "decode ledger")
	}

	return f.Trades, nil
}

func (s *FileStore) save(records []record) error {
	payload, err := json.MarshalIndent(ledgerFile{Trades: records}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ledger")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write ledger temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist ledger")
	}

	return nil
}
