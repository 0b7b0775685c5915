package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/kitchenline/internal/core/apierr"
	"github.com/vietddude/kitchenline/internal/metrics"
)

const (
	maxResponseBytes = 10 << 20
	maxErrorMessage  = 200
	defaultUserAgent = "kitchenline/1.0"
)

// Config holds HTTP transport configuration.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	InsecureTLS bool          `yaml:"insecure_tls"`
	UserAgent   string        `yaml:"user_agent"`
	// MaxResponseBytes bounds a success body; larger responses fail. 0 = 10 MiB.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
}

// HTTPTransport implements Transport for a JSON REST API.
type HTTPTransport struct {
	baseURL    string
	userAgent  string
	maxBody    int64
	httpClient *http.Client

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport rooted at cfg.BaseURL.
func NewHTTPTransport(cfg Config) (*HTTPTransport, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = maxResponseBytes
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &HTTPTransport{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: ua,
		maxBody:   maxBody,
		// Per-attempt deadlines come from the caller's context.
		httpClient: &http.Client{Transport: tr},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}, nil
}

// BaseURL returns the API root requests are resolved against.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Do makes a single HTTP request.
func (t *HTTPTransport) Do(ctx context.Context, r *Request) (*Response, error) {
	start := time.Now()

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, string(r.Method), t.resolve(r.Path), body)
	if err != nil {
		return nil, apierr.New(apierr.CategoryUnknown, "create request", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.recordFailure()
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		t.recordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}
	tooLarge := int64(len(raw)) > t.maxBody
	if tooLarge {
		raw = raw[:t.maxBody]
	}

	latency := time.Since(start)
	metrics.TransportLatency.WithLabelValues(string(r.Method), strconv.Itoa(resp.StatusCode)).
		Observe(latency.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 4xx is the server answering; only count server-side failures.
		if resp.StatusCode >= 500 {
			t.recordFailure()
		} else {
			t.recordSuccess(latency)
		}
		return nil, apierr.FromStatus(resp.StatusCode, errorMessage(resp.StatusCode, raw))
	}

	t.recordSuccess(latency)
	if tooLarge {
		return nil, apierr.New(apierr.CategoryUnknown,
			fmt.Sprintf("%s %s: response body exceeds %d bytes", r.Method, r.Path, t.maxBody), nil)
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   normalizeBody(raw),
	}, nil
}

func (t *HTTPTransport) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.baseURL + path
}

// normalizeBody keeps valid JSON as-is and wraps anything else as a JSON string.
func normalizeBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(trimmed))
	return quoted
}

// errorMessage extracts a short human-readable message from an error body.
func errorMessage(status int, raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return http.StatusText(status)
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	return msg
}

// GetHealth returns the transport's health status.
func (t *HTTPTransport) GetHealth() HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.health
}

func (t *HTTPTransport) recordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successCount++
	t.requestCount++
	t.totalLatency += latency
	t.health.LastSuccessAt = time.Now()
	t.health.Available = true

	if t.requestCount > 0 {
		t.health.ErrorRate = float64(t.failureCount) / float64(t.requestCount)
	}
	if t.successCount > 0 {
		t.health.Latency = t.totalLatency / time.Duration(t.successCount)
	}
}

func (t *HTTPTransport) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureCount++
	t.requestCount++
	t.health.LastFailureAt = time.Now()

	if t.requestCount > 0 {
		t.health.ErrorRate = float64(t.failureCount) / float64(t.requestCount)
	}

	if t.health.ErrorRate > 0.5 {
		t.health.Available = false
	}
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
