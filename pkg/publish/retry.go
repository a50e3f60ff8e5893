package publish

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// DeliveryFailure is reported when an envelope exhausts its delivery
// attempts. The envelope is carried so the consumer can decide whether to
// spool it; it is never silently dropped.
type DeliveryFailure struct {
	Envelope models.MetricEnvelope
	Attempts int
	Err      error
}

// RetryingSink wraps a Sink with bounded retries and exponential backoff.
// Exhaustion is surfaced on the Failures channel instead of only an error,
// so a slow broker degrades delivery without stalling collection.
type RetryingSink struct {
	sink        Sink
	maxAttempts int
	backoffBase time.Duration
	failures    chan DeliveryFailure
	closed      atomic.Bool
}

// NewRetryingSink wraps sink. Zero options take the package defaults.
func NewRetryingSink(sink Sink, maxAttempts int, backoffBase time.Duration) *RetryingSink {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	return &RetryingSink{
		sink:        sink,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		failures:    make(chan DeliveryFailure, 64),
	}
}

// Failures is the reporting channel for exhausted deliveries. If the
// consumer lags, new failures are logged and dropped rather than blocking
// the publish path.
func (s *RetryingSink) Failures() <-chan DeliveryFailure {
	return s.failures
}

// Publish retries the wrapped sink with doubling backoff. On exhaustion it
// reports a DeliveryFailure and returns the last error.
func (s *RetryingSink) Publish(ctx context.Context, envelope models.MetricEnvelope) error {
	var lastErr error
	backoff := s.backoffBase

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.sink.Publish(ctx, envelope)
		if lastErr == nil {
			return nil
		}
		klog.Warningf("[publish] %s delivery attempt %d/%d failed: %v",
			envelope.Device, attempt, s.maxAttempts, lastErr)

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			s.report(envelope, attempt, ctx.Err())
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	s.report(envelope, s.maxAttempts, lastErr)
	return lastErr
}

func (s *RetryingSink) report(envelope models.MetricEnvelope, attempts int, err error) {
	if s.closed.Load() {
		klog.Errorf("[publish] sink closed, dropping report for %s: %v", envelope.Device, err)
		return
	}
	failure := DeliveryFailure{Envelope: envelope, Attempts: attempts, Err: err}
	select {
	case s.failures <- failure:
	default:
		klog.Errorf("[publish] failure channel full, dropping report for %s: %v",
			envelope.Device, err)
	}
}

// Close closes the wrapped sink and the reporting channel. Idempotent.
func (s *RetryingSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.sink.Close()
	close(s.failures)
	return err
}
