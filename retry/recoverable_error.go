package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// RecoverableError is implemented by errors that know whether the failed
// operation may be attempted again.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// transientMessages are lowercase fragments of driver errors that describe a
// database which is not reachable yet rather than a request it rejected.
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"too many connections",
	"the database system is starting up",
	"the database system is shutting down",
	"database is locked",
	"sqlite_busy",
}

// IsRecoverable reports whether err describes a transient failure. An error
// that implements RecoverableError decides for itself; otherwise network
// failures and known driver messages count as transient.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var marked RecoverableError
	if errors.As(err, &marked) {
		return marked.IsRecoverable()
	}
	return transient(err)
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Timeout()) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return transient(urlErr.Err)
	}

	message := strings.ToLower(err.Error())
	for _, fragment := range transientMessages {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

// markedError overrides the classification of the error it wraps.
type markedError struct {
	err         error
	recoverable bool
}

func (e *markedError) Error() string       { return e.err.Error() }
func (e *markedError) Unwrap() error       { return e.err }
func (e *markedError) IsRecoverable() bool { return e.recoverable }

// Recoverable marks err as worth retrying.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, recoverable: true}
}

// Permanent marks err as final, whatever its message says.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err}
}
