package models

import (
	"fmt"
	"time"
)

// CacheStatusEntry is the remote cache summary for one timeframe.
type CacheStatusEntry struct {
	Timeframe    Timeframe  `json:"timeframe"`
	Cached       bool       `json:"cached"`
	Rows         int        `json:"rows"`
	Partitions   int        `json:"partitions"`
	LastModified *time.Time `json:"last_modified"`
	Path         string     `json:"path,omitempty"`
}

// WeekPartition is one ISO week of the remote cache. Start and End are always
// derived from Key.
type WeekPartition struct {
	Key    string    `json:"key"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Cached bool      `json:"cached"`
}

// Window returns the partition bounds.
func (w WeekPartition) Window() TimeWindow {
	return TimeWindow{Start: w.Start, End: w.End}
}

// WeekFilter narrows the week-partition listing. Both bounds nil means the
// remote default window.
type WeekFilter struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Normalized swaps inverted bounds.
func (f WeekFilter) Normalized() WeekFilter {
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		f.Start, f.End = f.End, f.Start
	}
	return f
}

// WeekQuery selects week partitions for one timeframe.
type WeekQuery struct {
	Instrument string
	Timeframe  Timeframe
	Filter     WeekFilter
}

// DownloadRequest is the remote download trigger payload.
type DownloadRequest struct {
	Instrument string      `json:"instrument"`
	Timeframes []Timeframe `json:"timeframes"`
	Start      string      `json:"start,omitempty"`
	End        string      `json:"end,omitempty"`
}

// SavedPartition reports one file written by a download.
type SavedPartition struct {
	Timeframe Timeframe `json:"timeframe"`
	Path      string    `json:"path"`
}

// DownloadResult is the remote download response.
type DownloadResult struct {
	Saved []SavedPartition `json:"saved"`
}

// RemoteError is a non-2xx answer from the remote store. Detail carries the
// server-provided message verbatim.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote store: status %d", e.Status)
	}
	return fmt.Sprintf("remote store: status %d: %s", e.Status, e.Detail)
}
