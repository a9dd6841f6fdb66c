package devman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrTimeout means the long-poll window elapsed before the server answered.
	// It is the normal quiet state, not a failure.
	ErrTimeout = errors.New("devman: request timed out")
	// ErrConnection means the server could not be reached.
	ErrConnection = errors.New("devman: connection failure")
	// ErrMalformed means the server answered 2xx with a body we cannot use.
	ErrMalformed = errors.New("devman: malformed response")
)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("devman: http %d", e.StatusCode)
	}
	return fmt.Sprintf("devman: http %d: %s", e.StatusCode, e.Body)
}

// classify maps a transport error from http.Client.Do to one of the error kinds.
// Errors it does not recognize are returned unchanged and are fatal upstream.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	// Caller cancellation is not a network condition.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return ctx.Err()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return err
}
