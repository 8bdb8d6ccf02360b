package usecase

import (
	"errors"
	"fmt"

	"CandleSync/internal/domain/models"
)

// ErrorKind classifies failures surfaced by the orchestrator.
type ErrorKind string

const (
	KindStatusFetch   ErrorKind = "status_fetch_failed"
	KindWeekListFetch ErrorKind = "week_list_fetch_failed"
	KindCandleFetch   ErrorKind = "candle_fetch_failed"
	KindDownload      ErrorKind = "download_failed"
	KindValidation    ErrorKind = "validation_error"
)

var (
	ErrStatusFetch   = errors.New("status fetch failed")
	ErrWeekListFetch = errors.New("week list fetch failed")
	ErrCandleFetch   = errors.New("candle fetch failed")
	ErrDownload      = errors.New("download failed")
	ErrValidation    = errors.New("validation error")
)

var kindSentinels = map[ErrorKind]error{
	KindStatusFetch:   ErrStatusFetch,
	KindWeekListFetch: ErrWeekListFetch,
	KindCandleFetch:   ErrCandleFetch,
	KindDownload:      ErrDownload,
	KindValidation:    ErrValidation,
}

// SyncError is the typed failure of an orchestrator operation. Message is the
// user-facing text.
type SyncError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind.
func (e *SyncError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newSyncError(kind ErrorKind, msg string, err error) *SyncError {
	return &SyncError{Kind: kind, Message: msg, Err: err}
}

func validationErrorf(format string, a ...interface{}) *SyncError {
	return &SyncError{Kind: KindValidation, Message: fmt.Sprintf(format, a...)}
}

// remoteFailure surfaces the server detail verbatim when there is one.
func remoteFailure(kind ErrorKind, fallback string, err error) *SyncError {
	var re *models.RemoteError
	if errors.As(err, &re) && re.Detail != "" {
		return newSyncError(kind, re.Detail, err)
	}
	return newSyncError(kind, fallback, err)
}
