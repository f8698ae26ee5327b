package session

import (
	"testing"
	"time"
)

func TestConnectAndDisconnect_IsolatesState(t *testing.T) {
	m := NewManager()
	m.Connect("conn-1")
	m.SetCurrentPersona("conn-1", "alex")

	if got := m.CurrentPersona("conn-1"); got != "alex" {
		t.Fatalf("expected current persona 'alex', got %q", got)
	}

	m.Disconnect("conn-1")
	if got := m.CurrentPersona("conn-1"); got != "" {
		t.Fatalf("expected empty persona after disconnect, got %q", got)
	}
}

func TestSetCurrentPersona_UnknownConnectionIsNoop(t *testing.T) {
	m := NewManager()
	m.SetCurrentPersona("ghost", "alex") // must not panic
	if got := m.CurrentPersona("ghost"); got != "" {
		t.Fatalf("expected empty persona for unknown connection, got %q", got)
	}
}

func TestGetOrCreateConversationSession_ReusesExisting(t *testing.T) {
	m := NewManager()
	now := time.Now()

	first := m.GetOrCreateConversationSession("conn-1", "alex", "conv-1", now)
	second := m.GetOrCreateConversationSession("conn-1", "alex", "conv-2", now)

	if first != second {
		t.Fatal("expected the same session to be returned on a second call")
	}
	if second.ConversationID != "conv-1" {
		t.Fatalf("expected the original conversation id to be kept, got %q", second.ConversationID)
	}
}

func TestGetOrCreateConversationSession_AutoConnects(t *testing.T) {
	m := NewManager()
	cs := m.GetOrCreateConversationSession("fresh-conn", "alex", "conv-1", time.Now())
	if cs == nil {
		t.Fatal("expected a conversation session even without an explicit Connect")
	}
	if m.CurrentPersona("fresh-conn") != "" {
		t.Fatal("GetOrCreateConversationSession should not itself set the current persona")
	}
}

func TestIncrementTurnCount_BumpsCounterAndActivity(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.GetOrCreateConversationSession("conn-1", "alex", "conv-1", now)

	later := now.Add(time.Minute)
	m.IncrementTurnCount("conn-1", "alex", later)
	m.IncrementTurnCount("conn-1", "alex", later)

	cs := m.GetOrCreateConversationSession("conn-1", "alex", "conv-1", later)
	if cs.TurnCount != 2 {
		t.Fatalf("expected turn count 2, got %d", cs.TurnCount)
	}
	if !cs.LastActivity.Equal(later) {
		t.Fatalf("expected last activity updated to %v, got %v", later, cs.LastActivity)
	}
}

func TestUpdateContext_MergesKeysWithoutClobbering(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.GetOrCreateConversationSession("conn-1", "alex", "conv-1", now)

	m.UpdateContext("conn-1", "alex", map[string]string{"topic": "roadmap"}, now)
	m.UpdateContext("conn-1", "alex", map[string]string{"mood": "upbeat"}, now)

	cs := m.GetOrCreateConversationSession("conn-1", "alex", "conv-1", now)
	if cs.Context["topic"] != "roadmap" || cs.Context["mood"] != "upbeat" {
		t.Fatalf("expected both keys to survive merging, got %v", cs.Context)
	}
}

func TestStreamingSessionLifecycle(t *testing.T) {
	m := NewManager()
	now := time.Now()

	ss := m.CreateStreamingSession("conn-1", "alex", "hello", now)
	if len(m.ListStreamingSessions("conn-1")) != 1 {
		t.Fatal("expected one active streaming session")
	}

	if !m.CancelStreamingSession("conn-1", ss.ID) {
		t.Fatal("expected CancelStreamingSession to succeed for a known stream")
	}
	if !ss.Cancelled() {
		t.Fatal("expected the streaming session to be marked cancelled")
	}

	m.CleanupStreamingSession("conn-1", ss.ID)
	if len(m.ListStreamingSessions("conn-1")) != 0 {
		t.Fatal("expected streaming sessions to be empty after cleanup")
	}
}

func TestCancelStreamingSession_UnknownStreamReturnsFalse(t *testing.T) {
	m := NewManager()
	m.Connect("conn-1")
	if m.CancelStreamingSession("conn-1", "ghost-stream") {
		t.Fatal("expected cancelling an unknown stream id to report false")
	}
}

func TestSweep_PurgesStaleConversationsAndStreams(t *testing.T) {
	m := NewManager()
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	m.GetOrCreateConversationSession("conn-1", "stale", "conv-stale", old)
	m.GetOrCreateConversationSession("conn-1", "fresh", "conv-fresh", recent)
	m.CreateStreamingSession("conn-1", "alex", "hi", old)

	m.Sweep(time.Now(), time.Hour, time.Hour)

	cs := m.GetOrCreateConversationSession("conn-1", "stale", "conv-new", recent)
	if cs.ConversationID != "conv-new" {
		t.Fatalf("expected the stale session to have been purged and recreated, got %q", cs.ConversationID)
	}
	if len(m.ListStreamingSessions("conn-1")) != 0 {
		t.Fatal("expected the stale streaming session to have been purged")
	}

	stillFresh := m.GetOrCreateConversationSession("conn-1", "fresh", "should-not-appear", recent)
	if stillFresh.ConversationID != "conv-fresh" {
		t.Fatal("expected the fresh conversation session to survive the sweep")
	}
}

func TestStartSweep_StopIsIdempotent(t *testing.T) {
	m := NewManager()
	m.GetOrCreateConversationSession("conn-1", "alex", "conv-1", time.Now().Add(-2*time.Hour))

	stop := m.StartSweep(5*time.Millisecond, time.Hour, time.Hour)
	time.Sleep(30 * time.Millisecond)
	stop()
	stop() // must not panic or deadlock
}
