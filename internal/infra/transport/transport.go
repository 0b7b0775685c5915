// Package transport implements the network collaborator of the request layer.
//
// This package contains:
//   - Transport interface: a single request/response exchange
//   - HTTPTransport: JSON over HTTP against the API base URL
//   - HealthStatus: rolling success/failure statistics per transport
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
)

// Request is one outgoing call. Path is relative to the transport's base URL
// and may carry a query string.
type Request struct {
	Method domain.Method
	Path   string
	Header http.Header
	Body   json.RawMessage
}

// Response is a successful (2xx) reply. Body is always valid JSON or empty.
type Response struct {
	Status int
	Header http.Header
	Body   json.RawMessage
}

// Transport performs a single attempt. Failures are returned as errors that
// apierr.Classify understands; non-2xx replies are *apierr.Error values.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HealthStatus holds transport statistics.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

func (f Func) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
