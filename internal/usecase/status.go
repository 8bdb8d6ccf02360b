package usecase

import (
	"context"
	"fmt"
	"sync/atomic"

	"CandleSync/internal/domain/models"
	domrepo "CandleSync/internal/domain/repository"
)

type statusSet struct {
	entries []models.CacheStatusEntry
	byTF    map[models.Timeframe]models.CacheStatusEntry
}

// StatusBook holds the remote cache status per timeframe. Every refresh
// replaces the whole collection; readers never see a partial update.
type StatusBook struct {
	store     domrepo.RemoteStore
	supported []models.Timeframe
	current   atomic.Pointer[statusSet]
}

func NewStatusBook(store domrepo.RemoteStore, supported []models.Timeframe) *StatusBook {
	b := &StatusBook{store: store, supported: supported}
	b.Reset()
	return b
}

// Refresh fetches the status of instrument and swaps it in. On error the
// previous collection stays in place.
func (b *StatusBook) Refresh(ctx context.Context, instrument string) ([]models.CacheStatusEntry, error) {
	entries, err := b.store.CacheStatus(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("cache status %s: %w", instrument, err)
	}

	set := &statusSet{
		entries: make([]models.CacheStatusEntry, 0, len(entries)),
		byTF:    make(map[models.Timeframe]models.CacheStatusEntry, len(entries)),
	}
	for _, e := range entries {
		if _, dup := set.byTF[e.Timeframe]; dup {
			continue
		}
		set.entries = append(set.entries, e)
		set.byTF[e.Timeframe] = e
	}
	b.current.Store(set)
	return b.Entries(), nil
}

// Entries returns a copy of the current collection in remote order.
func (b *StatusBook) Entries() []models.CacheStatusEntry {
	return append([]models.CacheStatusEntry(nil), b.current.Load().entries...)
}

// StatusFor returns the entry of tf, if any.
func (b *StatusBook) StatusFor(tf models.Timeframe) (models.CacheStatusEntry, bool) {
	e, ok := b.current.Load().byTF[tf]
	return e, ok
}

// Reset empties the collection.
func (b *StatusBook) Reset() {
	b.current.Store(&statusSet{byTF: map[models.Timeframe]models.CacheStatusEntry{}})
}

// DefaultTimeframe keeps current when it is supported, else picks the first
// listed timeframe that is supported, else the first supported one.
func (b *StatusBook) DefaultTimeframe(current models.Timeframe) models.Timeframe {
	if current != "" && b.isSupported(current) {
		return current
	}
	for _, e := range b.current.Load().entries {
		if b.isSupported(e.Timeframe) {
			return e.Timeframe
		}
	}
	if len(b.supported) > 0 {
		return b.supported[0]
	}
	return models.DefaultTimeframe()
}

// isSupported treats an empty supported list as allowing any timeframe.
func (b *StatusBook) isSupported(tf models.Timeframe) bool {
	if len(b.supported) == 0 {
		return true
	}
	for _, s := range b.supported {
		if s == tf {
			return true
		}
	}
	return false
}
