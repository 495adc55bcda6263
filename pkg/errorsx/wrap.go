package errorsx

import (
	"errors"
	"fmt"
)

// Error lets a bare reason act as a sentinel: errors.Is(err, ReasonAgentUnknown).
func (r ReasonCode) Error() string { return string(r) }

// ReasonedError tags an error with the reason reported in logs, metrics and
// HTTP status mapping.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

func (e ReasonedError) Is(target error) bool {
	r, ok := target.(ReasonCode)
	return ok && r == e.Reason
}

// Wrap tags err with reason. The innermost reason wins, so an error that
// already carries one is returned as is.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if errors.As(err, new(ReasonedError)) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Wrapf is Wrap with added context; err must be non-nil.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	return Wrap(fmt.Errorf(format+": %w", append(args, err)...), reason)
}

func Newf(reason ReasonCode, format string, args ...any) error {
	return ReasonedError{Err: fmt.Errorf(format, args...), Reason: reason}
}

// Reason returns the outermost reason in err's chain, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re ReasonedError
	if err != nil && errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
