package experiment

import (
	"errors"
	"fmt"
)

// Failure kinds. Every component wraps its errors in an *Error carrying one of
// these so the sweep can decide whether to abort or record and continue.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrResolution    = errors.New("resolution error")
	ErrData          = errors.New("data error")
	ErrTraining      = errors.New("training failure")
	ErrEvaluation    = errors.New("evaluation failure")
	ErrPersistence   = errors.New("persistence failure")
)

// Error is a classified failure. Kind is one of the Err* sentinels above.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Fail wraps err as a failure of the given kind. A nil err yields nil. An err
// that is already classified keeps its original kind.
func Fail(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Failf builds a classified failure from a format string.
func Failf(kind error, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind of err, or nil when err is unclassified.
func KindOf(err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	for _, kind := range []error{ErrConfiguration, ErrResolution, ErrData, ErrTraining, ErrEvaluation, ErrPersistence} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
