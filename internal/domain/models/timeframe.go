package models

import (
	"fmt"
	"time"
)

// Timeframe identifies a candle resolution on the remote store ("m5", "H1").
type Timeframe string

const (
	TFm1  Timeframe = "m1"
	TFm5  Timeframe = "m5"
	TFm15 Timeframe = "m15"
	TFm30 Timeframe = "m30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TFm1:  time.Minute,
	TFm5:  5 * time.Minute,
	TFm15: 15 * time.Minute,
	TFm30: 30 * time.Minute,
	TFH1:  time.Hour,
	TFH4:  4 * time.Hour,
	TFD1:  24 * time.Hour,
}

// IsValidTimeframe returns true if tf is a known timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TFm5 }

// ParseTimeframes validates a configured list of timeframes.
func ParseTimeframes(raw []string) ([]Timeframe, error) {
	out := make([]Timeframe, 0, len(raw))
	for _, s := range raw {
		tf := Timeframe(s)
		if !IsValidTimeframe(tf) {
			return nil, fmt.Errorf("unsupported timeframe %q", s)
		}
		out = append(out, tf)
	}
	return out, nil
}

// Duration is the bucket width of tf, zero when unknown.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}
