package connectivity

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HTTPProbe considers the API reachable when a GET against URL gets any HTTP
// response at all. Transport failures mean offline.
type HTTPProbe struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewHTTPProbe creates a probe with the given per-probe timeout.
func NewHTTPProbe(url string, timeout time.Duration, insecureTLS bool) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Transport: tr, Timeout: timeout},
		log:    slog.Default(),
	}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Error("Invalid probe URL", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("Probe failed", "url", p.url, "error", err)
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return true
}

// ManualSignal is a settable signal for hosts that already know the network
// state, and for tests.
type ManualSignal struct {
	mu       sync.Mutex
	online   bool
	watchers map[int]func(bool)
	nextID   int
}

func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{
		online:   online,
		watchers: make(map[int]func(bool)),
	}
}

func (s *ManualSignal) Online(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set changes the state and pushes it to watchers when it differs.
func (s *ManualSignal) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (s *ManualSignal) Watch(fn func(online bool)) (stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}
