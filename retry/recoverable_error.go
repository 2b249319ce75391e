package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// RecoverableError is implemented by errors that know whether the failed
// call may be attempted again.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a call that failed with err may be retried.
// Errors implementing RecoverableError decide for themselves. Otherwise
// deadlines, dropped connections and transient upstream failures are
// recoverable and everything else is not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range transientMessages {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// transientMessages are fragments of upstream failures worth retrying.
var transientMessages = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"rate limit",
	"too many requests",
	"overloaded",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
}

type markedError struct {
	err         error
	recoverable bool
}

func (e *markedError) Error() string {
	return e.err.Error()
}

func (e *markedError) Unwrap() error {
	return e.err
}

func (e *markedError) IsRecoverable() bool {
	return e.recoverable
}

// Recoverable marks err as worth retrying.
func Recoverable(err error) error {
	return &markedError{err: err, recoverable: true}
}

// Permanent marks err as not worth retrying, whatever its message says.
func Permanent(err error) error {
	return &markedError{err: err}
}
