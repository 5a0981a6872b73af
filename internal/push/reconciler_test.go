package push

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/bookdesk/internal/model"
)

type captureSink struct {
	mu   sync.Mutex
	got  []model.Notification
	seen map[int64]struct{}
	ch   chan model.Notification
}

func newCaptureSink() *captureSink {
	return &captureSink{
		seen: map[int64]struct{}{},
		ch:   make(chan model.Notification, 16),
	}
}

func (s *captureSink) ApplyNotification(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[n.ID]; dup {
		return false
	}
	s.seen[n.ID] = struct{}{}
	s.got = append(s.got, n)
	s.ch <- n
	return true
}

type pushServer struct {
	*httptest.Server
	dials atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

// newPushServer upgrades every request and parks the connection so the test
// can write frames or drop it at will.
func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ps.dials.Add(1)
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.mu.Unlock()
	}))
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http")
}

func (ps *pushServer) waitDials(t *testing.T, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ps.dials.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d dials, got %d", n, ps.dials.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (ps *pushServer) send(t *testing.T, payload string) {
	t.Helper()
	ps.mu.Lock()
	conn := ps.conns[len(ps.conns)-1]
	ps.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func (ps *pushServer) dropLast() {
	ps.mu.Lock()
	conn := ps.conns[len(ps.conns)-1]
	ps.mu.Unlock()
	_ = conn.Close()
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	return Config{ReconnectMin: 20 * time.Millisecond, ReconnectMax: 50 * time.Millisecond}
}

func TestReconciler_DeliversNotifications(t *testing.T) {
	srv := newPushServer(t)
	defer srv.Close()

	sink := newCaptureSink()
	r := New(srv.wsURL(), sink, testLogger(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	srv.waitDials(t, 1)
	srv.send(t, `{"id": 1, "title": "New Appointment", "message": "Ana booked 09:30", "created_at": "2026-08-31T10:00:00"}`)

	select {
	case n := <-sink.ch:
		if n.ID != 1 || n.Title != "New Appointment" {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never reached the sink")
	}
	if got := r.State(); got != StateConnected {
		t.Fatalf("expected connected state, got %s", got)
	}
}

func TestReconciler_MalformedFrameDoesNotDropConnection(t *testing.T) {
	srv := newPushServer(t)
	defer srv.Close()

	sink := newCaptureSink()
	r := New(srv.wsURL(), sink, testLogger(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	srv.waitDials(t, 1)
	srv.send(t, `{not json`)
	srv.send(t, `{"id": 2, "title": "After Garbage"}`)

	select {
	case n := <-sink.ch:
		if n.ID != 2 {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not survive the malformed frame")
	}
	if dials := srv.dials.Load(); dials != 1 {
		t.Fatalf("malformed frame triggered a reconnect: %d dials", dials)
	}
	if len(sink.got) != 1 {
		t.Fatalf("malformed frame reached the sink: %+v", sink.got)
	}
}

func TestReconciler_ReconnectsAfterDrop(t *testing.T) {
	srv := newPushServer(t)
	defer srv.Close()

	sink := newCaptureSink()
	r := New(srv.wsURL(), sink, testLogger(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	srv.waitDials(t, 1)
	srv.dropLast()
	srv.waitDials(t, 2)

	srv.send(t, `{"id": 3, "title": "Post Reconnect"}`)
	select {
	case n := <-sink.ch:
		if n.ID != 3 {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after reconnect")
	}
}

func TestReconciler_TeardownCancelsPendingReconnect(t *testing.T) {
	srv := newPushServer(t)
	defer srv.Close()

	sink := newCaptureSink()
	cfg := Config{ReconnectMin: 150 * time.Millisecond, ReconnectMax: 150 * time.Millisecond}
	r := New(srv.wsURL(), sink, testLogger(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	srv.waitDials(t, 1)
	srv.dropLast()

	// Cancel while the reconnect timer is still pending.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after teardown")
	}

	before := srv.dials.Load()
	time.Sleep(400 * time.Millisecond)
	if after := srv.dials.Load(); after != before {
		t.Fatalf("zombie reconnect after teardown: %d -> %d dials", before, after)
	}
	if got := r.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected after teardown, got %s", got)
	}
}
