package usecase

import (
	"context"
	"errors"
	"testing"

	"CandleSync/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBookRefreshReplacesWholesale(t *testing.T) {
	store := &fakeStore{status: []models.CacheStatusEntry{
		{Timeframe: models.TFm5, Cached: true, Rows: 10},
		{Timeframe: models.TFH1},
	}}
	book := NewStatusBook(store, []models.Timeframe{models.TFm5, models.TFH1})

	_, err := book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)
	e, ok := book.StatusFor(models.TFm5)
	require.True(t, ok)
	assert.Equal(t, 10, e.Rows)

	store.set(func(s *fakeStore) {
		s.status = []models.CacheStatusEntry{{Timeframe: models.TFH1, Cached: true}}
	})
	_, err = book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)

	_, ok = book.StatusFor(models.TFm5)
	assert.False(t, ok, "entries missing from a refresh are gone")
	assert.Len(t, book.Entries(), 1)
}

func TestStatusBookKeepsPreviousOnError(t *testing.T) {
	store := &fakeStore{status: []models.CacheStatusEntry{{Timeframe: models.TFm5, Cached: true}}}
	book := NewStatusBook(store, nil)
	_, err := book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)

	store.set(func(s *fakeStore) { s.statusErr = errors.New("boom") })
	_, err = book.Refresh(context.Background(), "XAU/USD")
	require.Error(t, err)

	e, ok := book.StatusFor(models.TFm5)
	require.True(t, ok)
	assert.True(t, e.Cached)
}

func TestStatusBookSkipsDuplicateTimeframes(t *testing.T) {
	store := &fakeStore{status: []models.CacheStatusEntry{
		{Timeframe: models.TFm5, Rows: 1},
		{Timeframe: models.TFm5, Rows: 2},
	}}
	book := NewStatusBook(store, nil)
	entries, err := book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rows)
}

func TestStatusBookDefaultTimeframe(t *testing.T) {
	store := &fakeStore{}
	book := NewStatusBook(store, []models.Timeframe{models.TFm5, models.TFH1})

	assert.Equal(t, models.TFH1, book.DefaultTimeframe(models.TFH1), "supported timeframe kept while status is empty")
	assert.Equal(t, models.TFm5, book.DefaultTimeframe(models.TFD1))

	store.set(func(s *fakeStore) {
		s.status = []models.CacheStatusEntry{{Timeframe: models.TFH1}, {Timeframe: models.TFm5}}
	})
	_, err := book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)

	assert.Equal(t, models.TFm5, book.DefaultTimeframe(models.TFm5))
	assert.Equal(t, models.TFH1, book.DefaultTimeframe(""))
	assert.Equal(t, models.TFH1, book.DefaultTimeframe(models.TFD1))
}

func TestStatusBookDefaultTimeframeIgnoresUnsupportedEntries(t *testing.T) {
	store := &fakeStore{status: []models.CacheStatusEntry{{Timeframe: models.TFH4}, {Timeframe: models.TFH1}}}
	book := NewStatusBook(store, []models.Timeframe{models.TFm5, models.TFH1})
	_, err := book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)

	assert.Equal(t, models.TFm5, book.DefaultTimeframe(models.TFm5), "supported timeframe kept though the status omits it")
	assert.Equal(t, models.TFH1, book.DefaultTimeframe(models.TFD1), "first listed timeframe that is supported")

	store.set(func(s *fakeStore) { s.status = []models.CacheStatusEntry{{Timeframe: models.TFH4}} })
	_, err = book.Refresh(context.Background(), "XAU/USD")
	require.NoError(t, err)
	assert.Equal(t, models.TFm5, book.DefaultTimeframe(""))
}
