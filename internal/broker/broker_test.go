package broker

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kapdap/cadence/internal/timer"
)

// fakeConn is an in-process Sender that records every frame sent to it,
// with no real network involved.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) SocketID() string { return c.id }

func (c *fakeConn) Send(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out[i] = env.Type
	}
	return out
}

func (c *fakeConn) count(msgType string) int {
	n := 0
	for _, t := range c.types() {
		if t == msgType {
			n++
		}
	}
	return n
}

func fakeClockAt(ms int64) timer.Clock {
	return func() int64 { return ms }
}

func joinFrame(sessionID, clientID string) []byte {
	f, _ := json.Marshal(map[string]any{
		"type":      "session_join",
		"sessionId": sessionID,
		"session": map[string]any{
			"name":        "Pomodoro",
			"description": "",
			"intervals":   map[string]any{"lastUpdated": 0, "items": []any{}},
		},
		"timer": map[string]any{"repeat": false, "interval": 0, "remaining": 1500000, "isRunning": false, "isPaused": false},
		"user":  map[string]any{"clientId": clientID, "name": "Alice", "avatarUrl": ""},
	})
	return f
}

func timerUpdateFrame() []byte {
	f, _ := json.Marshal(map[string]any{
		"type":  "timer_update",
		"timer": map[string]any{"repeat": false, "interval": 0, "remaining": 1000000, "isRunning": true, "isPaused": false},
	})
	return f
}

// Two sockets of different clients join the same session; a timer_update
// from one must reach the other's socket exactly once, and never the
// sender's own socket.
func TestTimerUpdateFansOutExcludingSender(t *testing.T) {
	b := New(fakeClockAt(1_000_000), time.Minute, time.Minute, nil)

	connA := newFakeConn("socket-a")
	connB := newFakeConn("socket-b")
	b.RegisterConn(connA)
	b.RegisterConn(connB)

	b.HandleFrame(connA, joinFrame("study-room", "11111111-1111-4111-8111-111111111111"))
	sess, ok := b.store.Get("study-room")
	if !ok {
		t.Fatal("session not created")
	}
	waitOnActor(sess)

	b.HandleFrame(connB, joinFrame("study-room", "22222222-2222-4222-8222-222222222222"))
	waitOnActor(sess)

	connA.mu.Lock()
	connA.frames = nil
	connA.mu.Unlock()
	connB.mu.Lock()
	connB.frames = nil
	connB.mu.Unlock()

	b.HandleFrame(connA, timerUpdateFrame())
	waitOnActor(sess)

	if got := connB.count("timer_updated"); got != 1 {
		t.Fatalf("socket B timer_updated count = %d, want 1", got)
	}
	if got := connA.count("timer_updated"); got != 0 {
		t.Fatalf("socket A (sender) timer_updated count = %d, want 0", got)
	}
}

// No frame sent to a joining socket may carry the raw clientId.
func TestOutboundUserNeverCarriesRawClientID(t *testing.T) {
	b := New(fakeClockAt(1_000_000), time.Minute, time.Minute, nil)
	conn := newFakeConn("socket-a")
	b.RegisterConn(conn)

	rawID := "33333333-3333-4333-8333-333333333333"
	b.HandleFrame(conn, joinFrame("watch-room", rawID))
	sess, ok := b.store.Get("watch-room")
	if !ok {
		t.Fatal("session not created")
	}
	waitOnActor(sess)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, frame := range conn.frames {
		if stringContains(string(frame), rawID) {
			t.Fatalf("outbound frame leaked raw clientId: %s", frame)
		}
	}
}

func stringContains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// emptyAt flips to non-zero the instant the last socket in a session
// drops, and back to zero the instant a new socket joins.
func TestEmptyAtTracksOnlinePresence(t *testing.T) {
	clockVal := int64(1_000_000)
	b := New(func() int64 { return clockVal }, time.Minute, time.Minute, nil)
	conn := newFakeConn("socket-a")
	b.RegisterConn(conn)

	b.HandleFrame(conn, joinFrame("lone-room", "44444444-4444-4444-8444-444444444444"))

	sess, ok := b.store.Get("lone-room")
	if !ok {
		t.Fatal("session not created")
	}

	waitOnActor(sess)
	if sess.EmptyAt != 0 {
		t.Fatalf("emptyAt = %d, want 0 while a socket is connected", sess.EmptyAt)
	}

	b.RemoveConn("socket-a")
	waitOnActor(sess)
	if sess.EmptyAt == 0 {
		t.Fatal("emptyAt still 0 after last socket disconnected")
	}
}

// After CLEANUP_INTERVAL past going offline, an offline user is reaped and
// the session is stamped empty; after SESSION_TIMEOUT past that the session
// itself is deleted.
func TestCleanupReapsUsersThenSessions(t *testing.T) {
	clockVal := int64(1_000_000)
	cleanupInterval := 5 * time.Minute
	sessionTimeout := 10 * time.Minute
	b := New(func() int64 { return clockVal }, cleanupInterval, sessionTimeout, nil)

	conn := newFakeConn("socket-a")
	b.RegisterConn(conn)
	b.HandleFrame(conn, joinFrame("reap-room", "55555555-5555-4555-8555-555555555555"))
	sess, ok := b.store.Get("reap-room")
	if !ok {
		t.Fatal("session not created")
	}
	waitOnActor(sess)
	b.RemoveConn("socket-a")
	waitOnActor(sess)

	clockVal += cleanupInterval.Milliseconds() + 1
	b.runCleanup()

	sess, ok = b.store.Get("reap-room")
	if !ok {
		t.Fatal("session reaped too early")
	}
	waitOnActor(sess)
	if len(sess.Users) != 0 {
		t.Fatalf("users = %d, want 0 after reapUsers", len(sess.Users))
	}
	if sess.EmptyAt == 0 {
		t.Fatal("emptyAt not stamped after reapUsers")
	}

	clockVal += sessionTimeout.Milliseconds() + 1
	b.runCleanup()

	if _, ok := b.store.Get("reap-room"); ok {
		t.Fatal("session not reaped after session timeout")
	}
}

func waitOnActor(sess *Session) {
	done := make(chan struct{})
	sess.actor.Submit(func() { close(done) })
	<-done
}

func TestUserListRepliesToRequesterOnly(t *testing.T) {
	b := New(fakeClockAt(1_000_000), time.Minute, time.Minute, nil)
	connA := newFakeConn("socket-a")
	connB := newFakeConn("socket-b")
	b.RegisterConn(connA)
	b.RegisterConn(connB)

	b.HandleFrame(connA, joinFrame("roster-room", "66666666-6666-4666-8666-666666666666"))
	sess, ok := b.store.Get("roster-room")
	if !ok {
		t.Fatal("session not created")
	}
	waitOnActor(sess)

	b.HandleFrame(connB, joinFrame("roster-room", "77777777-7777-4777-8777-777777777777"))
	waitOnActor(sess)

	connA.mu.Lock()
	connA.frames = nil
	connA.mu.Unlock()
	connB.mu.Lock()
	connB.frames = nil
	connB.mu.Unlock()

	f, _ := json.Marshal(map[string]any{"type": "user_list"})
	b.HandleFrame(connA, f)
	waitOnActor(sess)

	if got := connA.count("users_connected"); got != 1 {
		t.Fatalf("requester users_connected count = %d, want 1", got)
	}
	if got := connB.count("users_connected"); got != 0 {
		t.Fatalf("non-requester users_connected count = %d, want 0", got)
	}
}

func TestUnknownSessionReferenceErrors(t *testing.T) {
	b := New(fakeClockAt(1_000_000), time.Minute, time.Minute, nil)
	conn := newFakeConn("socket-orphan")
	b.RegisterConn(conn)

	f, _ := json.Marshal(map[string]any{
		"type":  "timer_update",
		"timer": map[string]any{"repeat": false, "interval": 0, "remaining": 1000, "isRunning": false, "isPaused": false},
	})
	b.HandleFrame(conn, f)

	if got := conn.count("error"); got != 1 {
		t.Fatalf("error count = %d, want 1", got)
	}

	var env struct {
		Message string `json:"message"`
	}
	conn.mu.Lock()
	_ = json.Unmarshal(conn.frames[0], &env)
	conn.mu.Unlock()
	if env.Message != reasonSessionNotFound {
		t.Fatalf("error message = %q, want %q", env.Message, reasonSessionNotFound)
	}
}

func TestLookupReturnsSanitizedSnapshot(t *testing.T) {
	b := New(fakeClockAt(1_000_000), time.Minute, time.Minute, nil)
	conn := newFakeConn("socket-a")
	b.RegisterConn(conn)
	b.HandleFrame(conn, joinFrame("lookup-room", "88888888-8888-4888-8888-888888888888"))

	snapshot, ok := b.Lookup("lookup-room")
	if !ok {
		t.Fatal("expected session to be found")
	}
	if snapshot.SessionID != "lookup-room" {
		t.Fatalf("sessionId = %q, want lookup-room", snapshot.SessionID)
	}
	for _, u := range snapshot.Users {
		if len(u.ClientID) != 64 {
			t.Fatalf("hashed clientId length = %d, want 64", len(u.ClientID))
		}
	}

	if _, ok := b.Lookup("no-such-room"); ok {
		t.Fatal("expected not-found for unknown session")
	}
}
