package usecase

import (
	"fmt"

	"CandleSync/internal/domain/models"
)

// Pure transitions over the orchestrator snapshot. Each takes a value and
// returns the next value; none of them performs I/O.

type transition func(models.Snapshot) models.Snapshot

func enter(state models.SyncState) transition {
	return func(s models.Snapshot) models.Snapshot {
		s.State = state
		if state == models.StateLoading || state == models.StateDownloading {
			s.LastError, s.ErrorKind, s.Notice = "", "", ""
		}
		return s
	}
}

func statusLoaded(entries []models.CacheStatusEntry, tf models.Timeframe) transition {
	return func(s models.Snapshot) models.Snapshot {
		if s.Timeframe != tf {
			s = viewReset(s)
		}
		s.Status = entries
		s.Timeframe = tf
		s.State = models.StateReady
		return s
	}
}

// statusRefreshed swaps in a background status refresh without touching the
// sync state or the reported error.
func statusRefreshed(entries []models.CacheStatusEntry, tf models.Timeframe) transition {
	return func(s models.Snapshot) models.Snapshot {
		if s.Timeframe != tf {
			s = viewReset(s)
			s.Weeks = nil
		}
		s.Status = entries
		s.Timeframe = tf
		return s
	}
}

func weeksLoaded(weeks []models.WeekPartition, filter models.WeekFilter) transition {
	return func(s models.Snapshot) models.Snapshot {
		s.Weeks = weeks
		s.WeekFilter = filter
		s.WeekView = true
		if s.SelectedWeek != nil {
			s.SelectedWeek = findWeek(weeks, s.SelectedWeek.Key)
		}
		s.State = models.StateReady
		return s
	}
}

func weeksCleared(s models.Snapshot) models.Snapshot {
	s.Weeks = nil
	s.SelectedWeek = nil
	return s
}

func weekSelected(w models.WeekPartition) transition {
	return func(s models.Snapshot) models.Snapshot {
		s.SelectedWeek = &w
		s.ManualRange = nil
		return s
	}
}

func rangeSelected(w models.TimeWindow) transition {
	return func(s models.Snapshot) models.Snapshot {
		s.ManualRange = &w
		s.SelectedWeek = nil
		return s
	}
}

func candlesRendered(candles []models.Candle) transition {
	return func(s models.Snapshot) models.Snapshot {
		s.Candles = candles
		s.DataRange = nil
		if n := len(candles); n > 0 {
			s.DataRange = &models.DataRange{Min: candles[0].Time, Max: candles[n-1].Time}
		}
		s.State = models.StateReady
		return s
	}
}

func noticed(format string, a ...interface{}) transition {
	msg := fmt.Sprintf(format, a...)
	return func(s models.Snapshot) models.Snapshot {
		s.Notice = msg
		s.State = models.StateReady
		return s
	}
}

func viewReset(s models.Snapshot) models.Snapshot {
	s.Candles = nil
	s.DataRange = nil
	s.SelectedWeek = nil
	s.ManualRange = nil
	return s
}

func instrumentChanged(instrument string) transition {
	return func(s models.Snapshot) models.Snapshot {
		s = viewReset(s)
		s.Instrument = instrument
		s.Status = nil
		s.Weeks = nil
		return s
	}
}

func timeframeChanged(tf models.Timeframe) transition {
	return func(s models.Snapshot) models.Snapshot {
		s = viewReset(s)
		s.Timeframe = tf
		s.Weeks = nil
		return s
	}
}

// failed rolls back to the last good snapshot and records err as the only
// current error.
func failed(lastGood models.Snapshot, err *SyncError) models.Snapshot {
	s := lastGood.Clone()
	s.State = models.StateError
	s.LastError = err.Message
	s.ErrorKind = string(err.Kind)
	s.Notice = ""
	return s
}

func rejected(err *SyncError) transition {
	return func(s models.Snapshot) models.Snapshot {
		s.LastError = err.Message
		s.ErrorKind = string(err.Kind)
		s.Notice = ""
		return s
	}
}

func findWeek(weeks []models.WeekPartition, key string) *models.WeekPartition {
	for i := range weeks {
		if weeks[i].Key == key {
			w := weeks[i]
			return &w
		}
	}
	return nil
}

// selectionWindow resolves the active week or manual range.
func selectionWindow(s models.Snapshot) (models.TimeWindow, string, bool) {
	switch {
	case s.SelectedWeek != nil:
		return s.SelectedWeek.Window(), s.SelectedWeek.Key, true
	case s.ManualRange != nil:
		label := fmt.Sprintf("%s..%s", s.ManualRange.Start.Format("2006-01-02"), s.ManualRange.End.Format("2006-01-02"))
		return *s.ManualRange, label, true
	default:
		return models.TimeWindow{}, "", false
	}
}
