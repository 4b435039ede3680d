// Package upstream reaches third-party HTTP services. TryEndpoints walks an
// ordered list of candidates until one answers; Client wraps the JSON
// request/response plumbing shared by every proxy.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Klingon-tech/klingpay/internal/log"
)

var (
	// ErrNoEndpoints is returned when the candidate list is empty.
	ErrNoEndpoints = errors.New("no upstream endpoints configured")

	// ErrAllEndpointsFailed matches every *AllFailedError.
	ErrAllEndpointsFailed = errors.New("all upstream endpoints failed")
)

// Permanent marks err as a failure that no other endpoint would fix, such
// as a rejected request. TryEndpoints stops at a permanent error and
// returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Attempt records the outcome of one failed candidate.
type Attempt struct {
	Endpoint string // Redacted, safe to log.
	Err      error
}

// AllFailedError is returned when every candidate failed.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrAllEndpointsFailed.Error())
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Endpoint, a.Err)
	}
	return b.String()
}

// Unwrap exposes ErrAllEndpointsFailed and each attempt's error.
func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllEndpointsFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// TryEndpoints calls fn for each candidate in order until one succeeds.
// Every attempt runs under its own timeout derived from ctx. Cancelling ctx
// stops the loop and returns ctx's error. There is no backoff: the next
// candidate is tried immediately.
func TryEndpoints[T any](ctx context.Context, candidates []string, timeout time.Duration, fn func(ctx context.Context, endpoint string) (T, error)) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, ErrNoEndpoints
	}

	failed := &AllFailedError{Attempts: make([]Attempt, 0, len(candidates))}
	for _, endpoint := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		service := serviceLabel(endpoint)
		start := time.Now()
		result, err := attempt(ctx, endpoint, timeout, fn)
		if err == nil {
			attemptsTotal.WithLabelValues(service, outcomeSuccess).Inc()
			attemptDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
			return result, nil
		}

		if ctx.Err() != nil {
			attemptsTotal.WithLabelValues(service, outcomeCanceled).Inc()
			return zero, ctx.Err()
		}
		attemptsTotal.WithLabelValues(service, outcomeFailure).Inc()
		attemptDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		redacted := Redact(endpoint)
		log.Upstream.Debug().Str("endpoint", redacted).Err(err).Msg("Upstream attempt failed")
		failed.Attempts = append(failed.Attempts, Attempt{Endpoint: redacted, Err: err})
	}

	log.Upstream.Warn().Int("attempts", len(failed.Attempts)).Msg("All upstream endpoints failed")
	return zero, failed
}

func attempt[T any](ctx context.Context, endpoint string, timeout time.Duration, fn func(context.Context, string) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, endpoint)
}

// Redact strips credentials, query and fragment from an endpoint so it can
// be logged. Non-URL candidates are returned unchanged.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func serviceLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Hostname()
}
