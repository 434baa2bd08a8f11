package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy
// ⭐ SSOT: 호출자는 errors.Is 로 분기 ("나중에 재시도" vs "입력 자체가 불가")
var (
	// ErrTransientFetch upstream timeout / rate limit / 5xx; retry later
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrTimeout is a transient failure raised by the operation deadline
	ErrTimeout = fmt.Errorf("%w: operation timed out", ErrTransientFetch)
	// ErrUnavailable upstream is down
	ErrUnavailable = fmt.Errorf("%w: source unavailable", ErrTransientFetch)

	ErrNotFound         = errors.New("not found")
	ErrPartialData      = errors.New("partial data")
	ErrInsufficientData = errors.New("insufficient data")
	ErrTraining         = errors.New("training failed")
	ErrEmptyResult      = errors.New("no data available")
	ErrInvalidHorizon   = errors.New("invalid horizon")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// FetchError is an adapter failure classified by Kind
type FetchError struct {
	Op     string
	Symbol Symbol
	Kind   error
	Err    error
}

func (e *FetchError) Error() string {
	msg := e.Op
	if e.Symbol != "" {
		msg += " " + string(e.Symbol)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewFetchError classifies an adapter failure
func NewFetchError(op string, sym Symbol, kind, err error) *FetchError {
	return &FetchError{Op: op, Symbol: sym, Kind: kind, Err: err}
}

// PartialDataError is a per-symbol failure inside a batch
type PartialDataError struct {
	Symbol Symbol
	Err    error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("partial data: %s dropped: %v", e.Symbol, e.Err)
}

func (e *PartialDataError) Unwrap() []error { return []error{ErrPartialData, e.Err} }

// InsufficientDataError means history is too short to forecast
type InsufficientDataError struct {
	Symbol Symbol
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s has %d observations, need at least %d", e.Symbol, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// TrainingError is an internal model-fit failure
type TrainingError struct {
	Symbol Symbol
	Err    error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed for %s: %v", e.Symbol, e.Err)
}

func (e *TrainingError) Unwrap() []error { return []error{ErrTraining, e.Err} }

// IsRetryable reports whether re-invoking later may succeed
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}
