package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
)

func TestMonitor_CurrentDoesNotProbe(t *testing.T) {
	probes := 0
	sig := signalFunc(func(ctx context.Context) bool {
		probes++
		return false
	})
	m := NewMonitor(sig)

	if m.Current() != domain.StateOnline {
		t.Errorf("expected initial state online, got %v", m.Current())
	}
	if probes != 0 {
		t.Errorf("Current must not probe, got %d probes", probes)
	}
}

func TestMonitor_RefreshNotifiesOnlyOnChange(t *testing.T) {
	sig := NewManualSignal(true)
	m := NewMonitor(sig)

	var got []domain.ConnectivityState
	m.Subscribe(func(s domain.ConnectivityState) { got = append(got, s) })

	ctx := context.Background()
	m.Refresh(ctx) // online -> online
	sig.Set(false)
	m.Refresh(ctx) // online -> offline
	m.Refresh(ctx) // offline -> offline
	sig.Set(true)
	if s := m.Refresh(ctx); s != domain.StateOnline {
		t.Errorf("Refresh returned %v, want online", s)
	}

	want := []domain.ConnectivityState{domain.StateOffline, domain.StateOnline}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	sig := NewManualSignal(true)
	m := NewMonitor(sig)

	calls := 0
	unsubscribe := m.Subscribe(func(domain.ConnectivityState) { calls++ })
	other := 0
	m.Subscribe(func(domain.ConnectivityState) { other++ })

	sig.Set(false)
	m.Refresh(context.Background())
	unsubscribe()
	unsubscribe() // idempotent

	sig.Set(true)
	m.Refresh(context.Background())

	if calls != 1 {
		t.Errorf("expected 1 call before unsubscribe, got %d", calls)
	}
	if other != 2 {
		t.Errorf("remaining subscriber should get both changes, got %d", other)
	}
}

func TestMonitor_SubscriberMayCallBack(t *testing.T) {
	sig := NewManualSignal(true)
	m := NewMonitor(sig)

	var seen domain.ConnectivityState
	var unsub func()
	unsub = m.Subscribe(func(s domain.ConnectivityState) {
		seen = m.Current()
		unsub()
	})

	sig.Set(false)
	m.Refresh(context.Background())
	if seen != domain.StateOffline {
		t.Errorf("expected subscriber to observe offline, got %v", seen)
	}
}

func TestMonitor_StartFollowsNotifier(t *testing.T) {
	sig := NewManualSignal(false)
	m := NewMonitor(sig)

	changes := make(chan domain.ConnectivityState, 4)
	m.Subscribe(func(s domain.ConnectivityState) { changes <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx, time.Hour)
		close(done)
	}()

	expect := func(want domain.ConnectivityState) {
		t.Helper()
		select {
		case s := <-changes:
			if s != want {
				t.Fatalf("expected %v, got %v", want, s)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}

	// Initial refresh picks up the offline signal.
	expect(domain.StateOffline)

	sig.Set(true)
	expect(domain.StateOnline)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestMonitor_ConcurrentRefresh(t *testing.T) {
	sig := NewManualSignal(true)
	m := NewMonitor(sig, WithInitialState(domain.StateOffline))

	var mu sync.Mutex
	notified := 0
	m.Subscribe(func(domain.ConnectivityState) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Refresh(context.Background())
		}()
	}
	wg.Wait()

	if m.Current() != domain.StateOnline {
		t.Errorf("expected online, got %v", m.Current())
	}
	if notified != 1 {
		t.Errorf("expected exactly 1 notification, got %d", notified)
	}
}

func TestHTTPProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Any response counts, even an error status.
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	probe := NewHTTPProbe(server.URL, time.Second, false)
	if !probe.Online(context.Background()) {
		t.Error("expected reachable server to be online")
	}

	server.Close()
	if probe.Online(context.Background()) {
		t.Error("expected closed server to be offline")
	}
}

func TestHTTPProbe_InvalidURL(t *testing.T) {
	probe := NewHTTPProbe("://nope", time.Second, false)
	if probe.Online(context.Background()) {
		t.Error("expected invalid URL to be offline")
	}
}

type signalFunc func(ctx context.Context) bool

func (f signalFunc) Online(ctx context.Context) bool { return f(ctx) }
