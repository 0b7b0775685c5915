package apierr

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// FromStatus builds the Error for a non-2xx HTTP response.
func FromStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	e := New(statusCategory(status), message, nil)
	e.Status = status
	return e
}

func statusCategory(status int) Category {
	switch {
	case status == http.StatusUnauthorized:
		return CategoryAuth
	case status == http.StatusForbidden:
		return CategoryPermission
	case status == http.StatusNotFound, status == http.StatusGone:
		return CategoryNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status >= 500 && status <= 599:
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

// Classify maps any failure to exactly one category. It is pure and
// deterministic; nil maps to nil. An err that already wraps an *Error is
// returned as that *Error unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, context.Canceled):
		return New(CategoryUnknown, "request canceled", err)
	case isTimeout(err):
		return New(CategoryTimeout, "request timed out", err)
	case isNetwork(err):
		return New(CategoryNetwork, "connection could not be established", err)
	default:
		return New(CategoryUnknown, "unexpected failure", err)
	}
}

// Order matters: a dial timeout is both a *net.OpError and a timeout, and
// must classify as Timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNetwork(err error) bool {
	if errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
