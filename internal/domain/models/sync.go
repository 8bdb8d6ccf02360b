package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncState is the orchestrator lifecycle state.
type SyncState string

const (
	StateIdle        SyncState = "idle"
	StateLoading     SyncState = "loading"
	StateReady       SyncState = "ready"
	StateDownloading SyncState = "downloading"
	StateRefetching  SyncState = "refetching"
	StateError       SyncState = "error"
)

// Snapshot is the complete orchestrator state. Readers always receive a copy.
type Snapshot struct {
	State        SyncState          `json:"state"`
	Instrument   string             `json:"instrument"`
	Timeframe    Timeframe          `json:"timeframe"`
	Status       []CacheStatusEntry `json:"status"`
	Weeks        []WeekPartition    `json:"weeks"`
	WeekFilter   WeekFilter         `json:"week_filter"`
	WeekView     bool               `json:"week_view"`
	SelectedWeek *WeekPartition     `json:"selected_week,omitempty"`
	ManualRange  *TimeWindow        `json:"manual_range,omitempty"`
	Candles      []Candle           `json:"candles,omitempty"`
	DataRange    *DataRange         `json:"data_range,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	Notice       string             `json:"notice,omitempty"`
}

// Clone returns a deep copy so callers cannot alias orchestrator state.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Status = append([]CacheStatusEntry(nil), s.Status...)
	out.Weeks = append([]WeekPartition(nil), s.Weeks...)
	out.Candles = append([]Candle(nil), s.Candles...)
	if s.SelectedWeek != nil {
		w := *s.SelectedWeek
		out.SelectedWeek = &w
	}
	if s.ManualRange != nil {
		r := *s.ManualRange
		out.ManualRange = &r
	}
	if s.DataRange != nil {
		r := *s.DataRange
		out.DataRange = &r
	}
	return out
}

// SyncEvent is one journal record of a remote side effect.
type SyncEvent struct {
	ID         uuid.UUID   `json:"id"`
	At         time.Time   `json:"at"`
	Op         string      `json:"op"`
	Instrument string      `json:"instrument"`
	Timeframes []Timeframe `json:"timeframes"`
	Weeks      []string    `json:"weeks"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Result     string      `json:"result"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// NewSyncEvent stamps a new event with a random id.
func NewSyncEvent(op, instrument string, at time.Time) *SyncEvent {
	return &SyncEvent{
		ID:         uuid.New(),
		At:         at.UTC(),
		Op:         op,
		Instrument: instrument,
		Result:     "ok",
	}
}
