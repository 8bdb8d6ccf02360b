package usecase

import (
	"testing"
	"time"

	"CandleSync/internal/domain/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupGuardRejectsRepeatedKey(t *testing.T) {
	g := NewDedupGuard(clock.NewMock(), 0)

	release, ok := g.TryAcquire("m5:0:300")
	require.True(t, ok)
	release()

	_, ok = g.TryAcquire("m5:0:300")
	assert.False(t, ok, "same key as the previous request must be skipped")

	release, ok = g.TryAcquire("m5:0:600")
	require.True(t, ok)
	release()
}

func TestDedupGuardRejectsWhileInFlight(t *testing.T) {
	g := NewDedupGuard(clock.NewMock(), 0)

	release, ok := g.TryAcquire("a")
	require.True(t, ok)
	assert.True(t, g.InFlight())

	_, ok = g.TryAcquire("b")
	assert.False(t, ok)

	release()
	release()
	assert.False(t, g.InFlight())

	_, ok = g.TryAcquire("b")
	assert.True(t, ok)
}

func TestDedupGuardStaleHolder(t *testing.T) {
	mock := clock.NewMock()
	g := NewDedupGuard(mock, time.Minute)

	releaseA, ok := g.TryAcquire("a")
	require.True(t, ok)

	mock.Add(30 * time.Second)
	_, ok = g.TryAcquire("b")
	assert.False(t, ok)

	mock.Add(31 * time.Second)
	_, ok = g.TryAcquire("b")
	require.True(t, ok)

	releaseA()
	assert.True(t, g.InFlight(), "late release of a stale holder must not free the new one")
	assert.Equal(t, "b", g.LastKey())
}

func TestDedupGuardReset(t *testing.T) {
	g := NewDedupGuard(nil, 0)
	_, ok := g.TryAcquire("a")
	require.True(t, ok)

	g.Reset()
	assert.False(t, g.InFlight())
	_, ok = g.TryAcquire("a")
	assert.True(t, ok)
}

func TestBuildSyncKeyAlignsToTimeframe(t *testing.T) {
	a := BuildSyncKey(models.TFm5, models.VisibleRange{From: 310, To: 1190})
	b := BuildSyncKey(models.TFm5, models.VisibleRange{From: 320, To: 1150})
	assert.Equal(t, a, b)
	assert.Equal(t, "m5:300:1200", a)
	assert.NotEqual(t, a, BuildSyncKey(models.TFH1, models.VisibleRange{From: 310, To: 1190}))
}
