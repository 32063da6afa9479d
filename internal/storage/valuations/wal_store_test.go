package valuations

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

func valuation(day int, total string) domain.LatestInfoPayload {
	rel := decimal.RequireFromString("1.5")
	return domain.LatestInfoPayload{
		Changes: domain.Diff{Absolute: decimal.RequireFromString("15"), Relative: &rel},
		Date:    time.Date(2021, 6, day, 0, 0, 0, 0, time.UTC),
		Portfolio: []domain.TickerChange{
			{Ticker: "SBER", ClosePrice: decimal.RequireFromString("302.15"), Change: decimal.RequireFromString("18.57")},
		},
		TotalPrice: decimal.RequireFromString(total),
	}
}

func TestWALStore_SaveAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	idx1, err := store.Save(valuation(10, "1000"))
	require.NoError(t, err)
	idx2, err := store.Save(valuation(11, "1015"))
	require.NoError(t, err)
	assert.Equal(t, idx1+1, idx2)
	assert.Equal(t, idx2, store.CurrentIndex())

	all, err := store.After(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1000", all[0].Valuation.TotalPrice.String())
	assert.Equal(t, "SBER", all[1].Valuation.Portfolio[0].Ticker)
	require.NotNil(t, all[1].Valuation.Changes.Relative)
	assert.Equal(t, "1.5", all[1].Valuation.Changes.Relative.String())

	tail, err := store.After(idx1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, idx2, tail[0].Index)

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1015", latest.Valuation.TotalPrice.String())
	assert.True(t, latest.Valuation.Date.Equal(time.Date(2021, 6, 11, 0, 0, 0, 0, time.UTC)))
}

func TestWALStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	_, err = store.Save(valuation(10, "1000"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	latest, ok, err := reopened.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1000", latest.Valuation.TotalPrice.String())
}

func TestWALStore_RequiresDate(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save(domain.LatestInfoPayload{})
	assert.Error(t, err)
}

func TestWALStore_Nil(t *testing.T) {
	var store *WALStore
	_, err := store.Save(valuation(1, "1"))
	assert.Error(t, err)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}

func TestWALStore_SkipsForeignRecords(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first, err := store.Save(valuation(10, "1000"))
	require.NoError(t, err)
	require.NoError(t, store.wal.Write(store.wal.CurrentIndex()+1, "note_2021-06-10", []byte(`{}`)))
	idx, err := store.Save(valuation(11, "1015"))
	require.NoError(t, err)
	assert.Equal(t, first+2, idx)

	all, err := store.After(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].Index)
	assert.Equal(t, idx, all[1].Index)

	none, err := store.After(idx)
	require.NoError(t, err)
	assert.Empty(t, none)
}
