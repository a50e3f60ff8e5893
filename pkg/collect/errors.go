package collect

import (
	"context"
	"errors"
	"net"

	"github.com/susgrid/poweff-collector/pkg/util"
)

// TransientError marks a failure worth retrying within the same due-cycle:
// dial timeouts, connection resets, command timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure no retry can fix within this due-cycle:
// rejected credentials, unknown family, broken configuration. The device
// stays scheduled and is attempted again at its normal interval.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error { return &TransientError{Err: err} }

// Permanent wraps err as non-retryable.
func Permanent(err error) error { return &PermanentError{Err: err} }

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// classify tags an untyped connection error. Auth rejections are permanent;
// network-level failures and timeouts are transient. Anything unknown is
// treated as transient so a flaky device still gets its retries.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsPermanent(err) {
		return err
	}
	if errors.Is(err, util.ErrAuthFailed) {
		return Permanent(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	return Transient(err)
}
