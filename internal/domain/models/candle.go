package models

import (
	"encoding/json"
	"time"
)

// Candle is one rendered OHLC bar. Time is epoch seconds.
type Candle struct {
	Time   int64    `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// RawCandle is a candle as the remote store sends it. Time is either epoch
// seconds or a calendar date string.
type RawCandle struct {
	Time   json.RawMessage `json:"time"`
	Open   float64         `json:"open"`
	High   float64         `json:"high"`
	Low    float64         `json:"low"`
	Close  float64         `json:"close"`
	Volume *float64        `json:"volume,omitempty"`
}

// VisibleRange is the chart window reported by the viewport, in epoch seconds.
type VisibleRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// DataRange is the [min, max] time span of the rendered candle sequence.
type DataRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Gaps describes what the rendered data is missing relative to a viewport.
// A nil side needs no fetch.
type Gaps struct {
	MissingStart *int64 `json:"missing_start,omitempty"`
	MissingEnd   *int64 `json:"missing_end,omitempty"`
}

// Empty reports whether nothing is missing.
func (g Gaps) Empty() bool {
	return g.MissingStart == nil && g.MissingEnd == nil
}

// TimeWindow is an inclusive wall-clock interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowFromRange converts epoch seconds to a UTC window.
func WindowFromRange(r VisibleRange) TimeWindow {
	return TimeWindow{Start: time.Unix(r.From, 0).UTC(), End: time.Unix(r.To, 0).UTC()}
}

// CandleQuery selects candles for one timeframe and window.
type CandleQuery struct {
	Instrument string
	Timeframe  Timeframe
	Window     TimeWindow
}
