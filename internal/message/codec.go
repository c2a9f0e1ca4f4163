package message

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kapdap/cadence/internal/timer"
)

// CodecError is returned by Decode for any input that cannot be turned into
// a usable message. It is always answered on the wire with an error frame,
// never a dropped connection.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return e.Reason
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("session_id", func(fl validator.FieldLevel) bool {
		return ValidSessionID(fl.Field().String())
	})
	return v
}

// rawEnvelope captures every field any inbound message type might carry.
// json.RawMessage on Items lets decodeSessionUpdate distinguish "absent",
// "not an array", and "empty array" before committing to a shape.
type rawEnvelope struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"sessionId"`
	Session   *rawSession `json:"session"`
	Timer     *timer.PublicState `json:"timer"`
	User      *rawUser    `json:"user"`
}

type rawSession struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Intervals   *rawIntervalList `json:"intervals"`
}

type rawIntervalList struct {
	LastUpdated int64           `json:"lastUpdated"`
	Items       json.RawMessage `json:"items"`
}

type rawUser struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// Decode parses a raw inbound frame, dispatching on its "type" field, and
// runs every field through the sanitize pipeline (trim, truncate, clamp,
// default) before returning a typed message. It never panics on malformed
// input; failures come back as a CodecError describing the wire-visible
// reason.
func Decode(raw []byte) (any, *CodecError) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &CodecError{Reason: "Invalid message format"}
	}
	if strings.TrimSpace(string(env.Type)) == "" {
		return nil, &CodecError{Reason: "Invalid message format"}
	}

	switch env.Type {
	case TypeSessionJoin:
		return decodeSessionJoin(env)
	case TypeSessionUpdate:
		return decodeSessionUpdate(env)
	case TypeTimerUpdate:
		return decodeTimerUpdate(env)
	case TypeUserUpdate:
		return decodeUserUpdate(env)
	case TypeUserList:
		return UserList{}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, &CodecError{Reason: "Unknown message type"}
	}
}

// Encode serializes any outbound or already-sanitized inbound message to a
// wire frame. Because Decode's sanitize pipeline is idempotent, re-decoding
// and re-encoding a message it already produced yields byte-identical
// output.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeSessionJoin(env rawEnvelope) (any, *CodecError) {
	if env.Session == nil || env.User == nil {
		return nil, &CodecError{Reason: "Invalid message format"}
	}

	sessionID := CanonicalizeSessionID(env.SessionID)
	if err := validate.Var(sessionID, "required,session_id"); err != nil {
		return nil, &CodecError{Reason: "Invalid message format"}
	}

	items, codecErr := decodeIntervalItems(env.Session.Intervals)
	if codecErr != nil {
		return nil, codecErr
	}

	lastUpdated := int64(0)
	if env.Session.Intervals != nil {
		lastUpdated = env.Session.Intervals.LastUpdated
	}

	msg := SessionJoin{
		Type:      TypeSessionJoin,
		SessionID: sessionID,
		Session: SessionFields{
			Name:        sanitizeName(env.Session.Name),
			Description: sanitizeDescription(env.Session.Description),
			Intervals:   IntervalList{LastUpdated: lastUpdated, Items: items},
		},
		User: UserFields{
			ClientID:  env.User.ClientID,
			Name:      sanitizeName(env.User.Name),
			AvatarURL: sanitizeAvatarURL(env.User.AvatarURL),
		},
	}
	if env.Timer != nil {
		msg.Timer = sanitizeTimerState(*env.Timer)
	}
	return msg, nil
}

func decodeSessionUpdate(env rawEnvelope) (any, *CodecError) {
	if env.Session == nil || env.Session.Intervals == nil {
		return nil, &CodecError{Reason: "Invalid intervals data"}
	}

	items, codecErr := decodeIntervalItems(env.Session.Intervals)
	if codecErr != nil {
		return nil, codecErr
	}

	msg := SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionFields{
			Name:        sanitizeName(env.Session.Name),
			Description: sanitizeDescription(env.Session.Description),
			Intervals:   IntervalList{LastUpdated: env.Session.Intervals.LastUpdated, Items: items},
		},
	}
	if env.Timer != nil {
		ts := sanitizeTimerState(*env.Timer)
		msg.Timer = &ts
	}
	return msg, nil
}

func decodeTimerUpdate(env rawEnvelope) (any, *CodecError) {
	if env.Timer == nil {
		return nil, &CodecError{Reason: "Invalid message format"}
	}
	return TimerUpdate{Type: TypeTimerUpdate, Timer: sanitizeTimerState(*env.Timer)}, nil
}

func decodeUserUpdate(env rawEnvelope) (any, *CodecError) {
	if env.User == nil {
		return nil, &CodecError{Reason: "Invalid message format"}
	}
	return UserUpdate{Type: TypeUserUpdate, User: UserFields{
		ClientID:  env.User.ClientID,
		Name:      sanitizeName(env.User.Name),
		AvatarURL: sanitizeAvatarURL(env.User.AvatarURL),
	}}, nil
}

// decodeIntervalItems requires Items be a JSON array when the list itself
// is present; a missing list decodes to an empty one.
func decodeIntervalItems(list *rawIntervalList) ([]timer.Interval, *CodecError) {
	if list == nil || len(list.Items) == 0 {
		return []timer.Interval{}, nil
	}

	trimmed := strings.TrimSpace(string(list.Items))
	if trimmed == "null" {
		return []timer.Interval{}, nil
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &CodecError{Reason: "Invalid intervals data"}
	}

	var items []timer.Interval
	if err := json.Unmarshal(list.Items, &items); err != nil {
		return nil, &CodecError{Reason: "Invalid intervals data"}
	}

	sanitized := make([]timer.Interval, len(items))
	for i, it := range items {
		sanitized[i] = sanitizeInterval(it)
	}
	return sanitized, nil
}

// CanonicalizeSessionID lower-cases and trims a session id before matching
// it against ValidSessionID or looking it up in the store.
func CanonicalizeSessionID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func sanitizeName(s string) string {
	return truncateRunes(strings.TrimSpace(s), MaxNameLength)
}

func sanitizeDescription(s string) string {
	return truncateRunes(strings.TrimSpace(s), MaxDescriptionLength)
}

func sanitizeAvatarURL(s string) string {
	return truncateRunes(strings.TrimSpace(s), MaxAvatarURLLength)
}

func sanitizeAlert(s string) string {
	s = truncateRunes(strings.TrimSpace(s), MaxAlertLength)
	if s == "" {
		return DefaultAlert
	}
	return s
}

func sanitizeDuration(d int) int {
	if d <= 0 {
		return timer.DefaultDurationSeconds
	}
	if d < timer.MinDurationSeconds {
		return timer.MinDurationSeconds
	}
	if d > timer.MaxDurationSeconds {
		return timer.MaxDurationSeconds
	}
	return d
}

func sanitizeInterval(i timer.Interval) timer.Interval {
	return timer.Interval{
		Name:      sanitizeName(i.Name),
		Duration:  sanitizeDuration(i.Duration),
		Alert:     sanitizeAlert(i.Alert),
		CustomCSS: i.CustomCSS,
	}
}

// sanitizeTimerState clamps a peer-supplied timer snapshot into the ranges
// the internal state machine requires before it is ever used as a baseline.
func sanitizeTimerState(s timer.PublicState) timer.PublicState {
	if s.Interval < 0 {
		s.Interval = 0
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if max := int64(timer.MaxDurationSeconds) * 1000; s.Remaining > max {
		s.Remaining = max
	}
	if !s.IsRunning {
		s.IsPaused = false
	}
	return s
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}
