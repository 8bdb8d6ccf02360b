package usecase

import (
	"encoding/json"
	"testing"
	"time"

	"CandleSync/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCandlesSortsAndDeduplicates(t *testing.T) {
	raw := []models.RawCandle{
		rawAt(300, 3),
		rawAt(100, 1),
		rawAt(200, 2),
		rawAt(100, 10),
	}

	got := NormalizeCandles(raw)
	assert.Equal(t, []int64{100, 200, 300}, candleTimes(got))
	assert.Equal(t, 10.0, got[0].Close, "later duplicate overwrites the earlier one")
}

func TestNormalizeCandlesParsesStringTimes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	raw := []models.RawCandle{
		rawAtString("2024-01-02T03:00:00", 1),
		rawAtString("02.01.2024 03:05:00.000000", 2),
		rawAt(ts.Add(10*time.Minute).Unix(), 3),
	}

	got := NormalizeCandles(raw)
	require.Len(t, got, 3)
	assert.Equal(t, ts.Unix(), got[0].Time)
	assert.Equal(t, ts.Add(5*time.Minute).Unix(), got[1].Time)
	assert.Equal(t, ts.Add(10*time.Minute).Unix(), got[2].Time)
}

func TestNormalizeCandlesDropsUnusableTimes(t *testing.T) {
	raw := []models.RawCandle{
		rawAt(0, 1),
		rawAtString("yesterday", 2),
		rawAtString("17", 3),
		{Time: json.RawMessage("null"), Close: 4},
		{Close: 5},
		rawAt(500, 6),
	}

	got := NormalizeCandles(raw)
	require.Len(t, got, 1)
	assert.Equal(t, int64(500), got[0].Time)
}

func TestNormalizeCandlesKeepsVolume(t *testing.T) {
	v := 12.5
	raw := []models.RawCandle{{Time: json.RawMessage("1700000000"), Close: 1, Volume: &v}}
	got := NormalizeCandles(raw)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Volume)
	assert.Equal(t, v, *got[0].Volume)
}

func TestNormalizeCandlesDropsOutOfRangeEpochs(t *testing.T) {
	raw := []models.RawCandle{
		{Time: json.RawMessage("1e300"), Close: 1},
		{Time: json.RawMessage("9223372036854775807"), Close: 2},
		{Time: json.RawMessage("1e400"), Close: 3},
		{Time: json.RawMessage("-1e300"), Close: 5},
		rawAt(600, 4),
	}

	got := NormalizeCandles(raw)
	assert.Equal(t, []int64{600}, candleTimes(got))
}
