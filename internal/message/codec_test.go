package message

import (
	"strings"
	"testing"

	"github.com/kapdap/cadence/internal/timer"
)

func TestDecodeRejectsNonJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	if err == nil || err.Reason != "Invalid message format" {
		t.Fatalf("got %v, want Invalid message format", err)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"sessionId":"standup"}`))
	if err == nil || err.Reason != "Invalid message format" {
		t.Fatalf("got %v, want Invalid message format", err)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"do_a_barrel_roll"}`))
	if err == nil || err.Reason != "Unknown message type" {
		t.Fatalf("got %v, want Unknown message type", err)
	}
}

func TestDecodeSessionUpdateRequiresIntervalsArray(t *testing.T) {
	_, err := Decode([]byte(`{"type":"session_update","session":{"name":"x","intervals":{"items":"not-an-array"}}}`))
	if err == nil || err.Reason != "Invalid intervals data" {
		t.Fatalf("got %v, want Invalid intervals data", err)
	}
}

func TestDecodeSessionUpdateMissingIntervalsIsError(t *testing.T) {
	_, err := Decode([]byte(`{"type":"session_update","session":{"name":"x"}}`))
	if err == nil || err.Reason != "Invalid intervals data" {
		t.Fatalf("got %v, want Invalid intervals data", err)
	}
}

func TestDecodeSessionJoinSanitizesFields(t *testing.T) {
	raw := `{
		"type":"session_join",
		"sessionId":"  Team-Standup  ",
		"session":{"name":"  Daily  ","description":"","intervals":{"items":[{"name":"Work","duration":0}]}},
		"user":{"clientId":"not-a-uuid","name":"` + strings.Repeat("x", 80) + `","avatarUrl":""}
	}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	join, ok := msg.(SessionJoin)
	if !ok {
		t.Fatalf("expected SessionJoin, got %T", msg)
	}
	if join.SessionID != "team-standup" {
		t.Fatalf("sessionId = %q, want canonicalized team-standup", join.SessionID)
	}
	if join.Session.Name != "Daily" {
		t.Fatalf("name = %q, want trimmed Daily", join.Session.Name)
	}
	if len(join.User.Name) != MaxNameLength {
		t.Fatalf("name len = %d, want truncated to %d", len(join.User.Name), MaxNameLength)
	}
	if join.Session.Intervals.Items[0].Duration != timer.DefaultDurationSeconds {
		t.Fatalf("duration = %d, want default %d", join.Session.Intervals.Items[0].Duration, timer.DefaultDurationSeconds)
	}
	if join.Session.Intervals.Items[0].Alert != DefaultAlert {
		t.Fatalf("alert = %q, want default %q", join.Session.Intervals.Items[0].Alert, DefaultAlert)
	}
}

func TestDecodeSessionJoinRejectsEmptySessionID(t *testing.T) {
	raw := `{"type":"session_join","sessionId":"","session":{"name":"x","intervals":{"items":[]}},"user":{"clientId":"x"}}`
	_, err := Decode([]byte(raw))
	if err == nil {
		t.Fatal("expected error for empty sessionId")
	}
}

func TestDecodePingAndUserList(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := msg.(Ping); !ok {
		t.Fatalf("expected Ping, got %T", msg)
	}

	msg, err = Decode([]byte(`{"type":"user_list"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := msg.(UserList); !ok {
		t.Fatalf("expected UserList, got %T", msg)
	}
}

func TestDecodeTimerUpdateClampsNegativeRemaining(t *testing.T) {
	raw := `{"type":"timer_update","timer":{"repeat":false,"interval":0,"remaining":-500,"isRunning":true,"isPaused":false}}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	update := msg.(TimerUpdate)
	if update.Timer.Remaining != 0 {
		t.Fatalf("remaining = %d, want clamped to 0", update.Timer.Remaining)
	}
}

func TestDecodeTimerUpdateForcesNotPausedWhenNotRunning(t *testing.T) {
	raw := `{"type":"timer_update","timer":{"repeat":false,"interval":0,"remaining":1000,"isRunning":false,"isPaused":true}}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	update := msg.(TimerUpdate)
	if update.Timer.IsPaused {
		t.Fatal("isPaused should be forced false when isRunning is false")
	}
}

// TestCodecIdempotence covers invariant 5: encoding a decoded message,
// decoding it again, and re-encoding yields identical bytes.
func TestCodecIdempotence(t *testing.T) {
	raw := `{
		"type":"session_join",
		"sessionId":"team-standup",
		"session":{"name":"Daily","description":"desc","intervals":{"items":[{"name":"Work","duration":1500,"alert":"Default","customCSS":""}]}},
		"user":{"clientId":"5b1f1e0a-1111-4c2d-8b3a-0123456789ab","name":"Ada","avatarUrl":""}
	}`
	msg1, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	encoded1, err := Encode(msg1)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	msg2, err := Decode(encoded1)
	if err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	encoded2, err := Encode(msg2)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}

	if string(encoded1) != string(encoded2) {
		t.Fatalf("codec not idempotent:\n%s\nvs\n%s", encoded1, encoded2)
	}
}

func TestUserPublicNeverMarshalsRawClientIDField(t *testing.T) {
	hashed := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	u := UserPublic{ClientID: hashed, Name: "Ada"}
	out, err := Encode(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), hashed) {
		t.Fatal("expected hashed id in output")
	}
	if len(hashed) != 64 {
		t.Fatal("test fixture hash must be 64 hex chars")
	}
}
