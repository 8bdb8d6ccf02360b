package usecase

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"CandleSync/internal/domain/models"
	"CandleSync/pkg/util"
)

// NormalizeCandles converts remote candles into a render-ready sequence:
// times resolved to epoch seconds, unusable times dropped, ascending order,
// one candle per timestamp (the later occurrence wins).
func NormalizeCandles(raw []models.RawCandle) []models.Candle {
	byTime := make(map[int64]int, len(raw))
	out := make([]models.Candle, 0, len(raw))

	for _, rc := range raw {
		ts, ok := candleTime(rc.Time)
		if !ok {
			continue
		}
		c := models.Candle{
			Time:   ts,
			Open:   rc.Open,
			High:   rc.High,
			Low:    rc.Low,
			Close:  rc.Close,
			Volume: rc.Volume,
		}
		if idx, dup := byTime[ts]; dup {
			out[idx] = c
			continue
		}
		byTime[ts] = len(out)
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// candleTime accepts numeric epoch seconds as-is and parses strings as
// calendar dates. Zero and negative times are rejected.
func candleTime(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var ts int64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		t, ok := util.ParseCalendarTime(s)
		if !ok {
			return 0, false
		}
		ts = t.Unix()
	} else {
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || math.IsNaN(f) || f < 1 || f >= math.MaxInt64 {
			return 0, false
		}
		ts = int64(f)
	}

	if ts <= 0 {
		return 0, false
	}
	return ts, true
}
