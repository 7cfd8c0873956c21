package server

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newPipeSession(t *testing.T, sm *SessionManager) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return sm.CreateSession(server, time.Now().UnixMilli())
}

func TestBindReplacementUpdatesMetrics(t *testing.T) {
	sm := NewSessionManager()
	metrics := NewMetrics()
	sm.SetMetrics(metrics)

	first := newPipeSession(t, sm)
	second := newPipeSession(t, sm)

	if old := sm.Bind(7, "alice", first); old != nil {
		t.Fatalf("first bind replaced a session: %v", old)
	}
	if got := testutil.ToFloat64(metrics.activeSessions); got != 2 {
		t.Fatalf("active sessions after first bind = %v, want 2", got)
	}

	old := sm.Bind(7, "alice", second)
	if old != first {
		t.Fatalf("second bind replaced %v, want the first session", old)
	}

	if _, ok := sm.GetSession(first.ID); ok {
		t.Fatal("replaced session still in the registry")
	}
	if got := testutil.ToFloat64(metrics.activeSessions); got != 1 {
		t.Fatalf("active sessions after replacement = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sessionsDisconnected); got != 1 {
		t.Fatalf("disconnected counter after replacement = %v, want 1", got)
	}

	// Rebinding the same session is not a replacement.
	if old := sm.Bind(7, "alice", second); old != nil {
		t.Fatalf("rebind replaced a session: %v", old)
	}
	if got := testutil.ToFloat64(metrics.sessionsDisconnected); got != 1 {
		t.Fatalf("disconnected counter after rebind = %v, want 1", got)
	}
}
