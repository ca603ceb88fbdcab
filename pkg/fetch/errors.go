package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"
)

// errIdleTimeout is the cancellation cause recorded when a streamed body
// stalls for longer than the configured timeout.
var errIdleTimeout = errors.New("upstream idle timeout")

// GatewayError reports that the upstream could not be reached or the
// exchange failed at the transport level (DNS, refused, reset, TLS).
type GatewayError struct {
	// URL is the upstream target
	URL string

	// Reason is a short, client-presentable description of the failure
	Reason string

	// Err is the underlying transport error
	Err error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("upstream %s unreachable: %s", e.URL, e.Reason)
}

// Unwrap returns the underlying error for error chain support.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that the upstream did not answer, or stopped sending,
// within the configured timeout.
type TimeoutError struct {
	// URL is the upstream target
	URL string

	// Timeout is the configured timeout duration
	Timeout time.Duration

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %s timed out after %s", e.URL, e.Timeout)
}

// Unwrap returns the underlying error for error chain support.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsGateway reports whether err is a *GatewayError.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// classify maps a transport failure to a TimeoutError or GatewayError.
// ctx is the request context, consulted for its cancellation cause.
func classify(ctx context.Context, err error, target string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) || IsGateway(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(context.Cause(ctx), errIdleTimeout) {
		return &TimeoutError{URL: target, Timeout: timeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: target, Timeout: timeout, Err: err}
	}

	return &GatewayError{URL: target, Reason: reason(err), Err: err}
}

// reason extracts the most specific human-readable cause from err.
func reason(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("lookup %s: %s", dnsErr.Name, dnsErr.Err)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}

	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}

	return err.Error()
}
