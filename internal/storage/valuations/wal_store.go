// Package valuations journals reconciled portfolio valuations in a write-ahead log.
package valuations

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const (
	defaultJournalDir = "./wal/valuations"
	segmentLimit      = 1000
	maxSegments       = 100
	keyPrefix         = "valuation_"
)

var errNotInitialized = errors.New("valuation journal is not initialized")

// WALStore appends valuations to a gowal log. Each record key carries the session date.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens or creates the journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "valuation_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init valuation WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the valuation and returns its journal index.
func (s *WALStore) Save(v domain.LatestInfoPayload) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errNotInitialized
	}
	if v.Date.IsZero() {
		return 0, errors.New("valuation date is required")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return 0, errors.Wrap(err, "marshal valuation")
	}

	key := keyPrefix + v.Date.Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(idx, key, payload); err != nil {
		return 0, errors.Wrap(err, "write valuation")
	}

	return idx, nil
}

// After returns all valuations journaled after index, oldest first.
func (s *WALStore) After(index uint64) ([]domain.ValuationRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.ValuationRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		rec, ok, err := s.get(idx)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}

	return records, nil
}

// Latest returns the most recent valuation, false when the journal is empty.
func (s *WALStore) Latest() (domain.ValuationRecord, bool, error) {
	if s == nil || s.wal == nil {
		return domain.ValuationRecord{}, false, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		rec, ok, err := s.get(idx)
		if err != nil {
			return domain.ValuationRecord{}, false, err
		}
		if ok {
			return rec, true, nil
		}
	}

	return domain.ValuationRecord{}, false, nil
}

// CurrentIndex returns the latest journal index.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// get must be called with the lock held. Indexes pruned from the log come back with an
// empty key and are reported as absent; read failures are returned.
func (s *WALStore) get(idx uint64) (domain.ValuationRecord, bool, error) {
	key, payload, err := s.wal.Get(idx)
	if err != nil {
		return domain.ValuationRecord{}, false, errors.Wrapf(err, "read valuation %d", idx)
	}
	if !strings.HasPrefix(key, keyPrefix) {
		return domain.ValuationRecord{}, false, nil
	}

	var v domain.LatestInfoPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return domain.ValuationRecord{}, false, errors.Wrapf(err, "decode valuation %d", idx)
	}

	return domain.ValuationRecord{Index: idx, Valuation: v}, true, nil
}
