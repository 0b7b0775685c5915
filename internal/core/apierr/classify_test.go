package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		expect    Category
		retryable bool
	}{
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, CategoryNetwork, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example"}, CategoryNetwork, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), CategoryNetwork, true},
		{"eof", io.ErrUnexpectedEOF, CategoryNetwork, true},
		{"unavailable", ErrNetworkUnavailable, CategoryNetwork, true},
		{"url", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, CategoryNetwork, true},
		{"deadline", context.DeadlineExceeded, CategoryTimeout, true},
		{"wrapped deadline", &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, CategoryTimeout, true},
		{"net timeout", &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}, CategoryTimeout, true},
		{"401", FromStatus(http.StatusUnauthorized, ""), CategoryAuth, false},
		{"403", FromStatus(http.StatusForbidden, ""), CategoryPermission, false},
		{"404", FromStatus(http.StatusNotFound, ""), CategoryNotFound, false},
		{"410", FromStatus(http.StatusGone, ""), CategoryNotFound, false},
		{"408", FromStatus(http.StatusRequestTimeout, ""), CategoryTimeout, true},
		{"504", FromStatus(http.StatusGatewayTimeout, ""), CategoryTimeout, true},
		{"500", FromStatus(http.StatusInternalServerError, ""), CategoryServer, true},
		{"503", FromStatus(http.StatusServiceUnavailable, ""), CategoryServer, true},
		{"400", FromStatus(http.StatusBadRequest, "bad body"), CategoryUnknown, true},
		{"canceled", context.Canceled, CategoryUnknown, true},
		{"other", errors.New("boom"), CategoryUnknown, true},
	}

	for _, tt := range tests {
		got := Classify(tt.err)
		if got == nil {
			t.Fatalf("%s: Classify returned nil", tt.name)
		}
		if got.Category != tt.expect {
			t.Errorf("%s: Classify(%v) = %v, want %v", tt.name, tt.err, got.Category, tt.expect)
		}
		if got.Retryable != tt.retryable {
			t.Errorf("%s: retryable = %v, want %v", tt.name, got.Retryable, tt.retryable)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	errs := []error{
		syscall.ECONNREFUSED,
		context.DeadlineExceeded,
		FromStatus(http.StatusUnauthorized, ""),
		errors.New("boom"),
	}
	for _, err := range errs {
		a, b := Classify(err), Classify(err)
		if a.Category != b.Category || a.Retryable != b.Retryable {
			t.Errorf("Classify(%v) not deterministic: %v/%v vs %v/%v",
				err, a.Category, a.Retryable, b.Category, b.Retryable)
		}
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestClassify_PassesThroughWrapped(t *testing.T) {
	orig := FromStatus(http.StatusForbidden, "no access")
	wrapped := fmt.Errorf("call /menu: %w", orig)

	got := Classify(wrapped)
	if got != orig {
		t.Fatalf("expected the original *Error back, got %v", got)
	}
	if got.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", got.Status)
	}
}

func TestErrorsIs_CategorySentinels(t *testing.T) {
	err := fmt.Errorf("outer: %w", FromStatus(http.StatusUnauthorized, "token expired"))
	if !errors.Is(err, Auth) {
		t.Error("expected errors.Is(err, Auth)")
	}
	if errors.Is(err, Network) {
		t.Error("did not expect errors.Is(err, Network)")
	}
}

func TestCategoryString(t *testing.T) {
	want := map[Category]string{
		CategoryNetwork:    "network",
		CategoryTimeout:    "timeout",
		CategoryAuth:       "auth",
		CategoryPermission: "permission",
		CategoryNotFound:   "not_found",
		CategoryServer:     "server",
		CategoryUnknown:    "unknown",
	}
	for c, s := range want {
		if c.String() != s {
			t.Errorf("Category(%d).String() = %q, want %q", c, c.String(), s)
		}
	}
}
