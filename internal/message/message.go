// Package message defines the wire contract between transport connections
// and the session broker: inbound/outbound message shapes, the constants
// and regexes that bound their fields, and the sanitize pipeline every
// field passes through before it is trusted or re-emitted.
package message

import (
	"regexp"

	"github.com/kapdap/cadence/internal/timer"
)

// Type identifies the shape of a wire message.
type Type string

const (
	TypeSessionJoin   Type = "session_join"
	TypeSessionUpdate Type = "session_update"
	TypeTimerUpdate   Type = "timer_update"
	TypeUserUpdate    Type = "user_update"
	TypeUserList      Type = "user_list"
	TypePing          Type = "ping"

	TypeSessionCreated   Type = "session_created"
	TypeSessionJoined    Type = "session_joined"
	TypeSessionUpdated   Type = "session_updated"
	TypeTimerUpdated     Type = "timer_updated"
	TypeUserConnected    Type = "user_connected"
	TypeUserDisconnected Type = "user_disconnected"
	TypeUserUpdated      Type = "user_updated"
	TypeUsersConnected   Type = "users_connected"
	TypePong             Type = "pong"
	TypeError            Type = "error"
)

const (
	MaxNameLength        = 50
	MaxDescriptionLength = 1000
	MaxAvatarURLLength   = 500
	MaxAlertLength       = 50

	DefaultAlert = "Default"
)

var (
	sessionIDPattern = regexp.MustCompile(`^[a-z0-9-]{3,64}$`)
	clientIDPattern  = regexp.MustCompile(`^[a-f0-9-]{36}$`)
)

// ValidSessionID reports whether id matches the canonical session id shape.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ValidClientIDShape reports whether id has the externalized clientId shape
// (36 lowercase hex/dash characters). It does not imply the id is a real
// UUID; IsValidClientID in internal/identity does that check.
func ValidClientIDShape(id string) bool {
	return clientIDPattern.MatchString(id)
}

// IntervalList mirrors the wire shape of a session's ordered interval list.
type IntervalList struct {
	LastUpdated int64            `json:"lastUpdated"`
	Items       []timer.Interval `json:"items"`
}

// SessionFields is the mutable portion of a session carried on session_join
// and session_update messages.
type SessionFields struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Intervals   IntervalList `json:"intervals"`
}

// UserFields is the mutable portion of a user's own profile.
type UserFields struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// UserPublic is a user as seen by peers: clientId has already been replaced
// with its SHA-256 hash by the time this struct is populated.
type UserPublic struct {
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	IsOnline  bool   `json:"isOnline"`
}

// SessionMetaPublic is the name/description/intervals slice of a session,
// used by session_updated which intentionally omits the user roster.
type SessionMetaPublic struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Intervals   IntervalList `json:"intervals"`
}

// SessionPublic is the full sanitized session snapshot returned on join and
// by the public lookup API.
type SessionPublic struct {
	SessionID   string                `json:"sessionId"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Intervals   IntervalList          `json:"intervals"`
	Timer       timer.PublicState     `json:"timer"`
	Users       map[string]UserPublic `json:"users"`
}

// Decoded inbound message types. Decode returns one of these (or Ping /
// UserList, which carry no payload).

type SessionJoin struct {
	Type      Type              `json:"type"`
	SessionID string            `json:"sessionId"`
	Session   SessionFields     `json:"session"`
	Timer     timer.PublicState `json:"timer"`
	User      UserFields        `json:"user"`
}

type SessionUpdate struct {
	Type    Type               `json:"type"`
	Session SessionFields      `json:"session"`
	Timer   *timer.PublicState `json:"timer,omitempty"`
}

type TimerUpdate struct {
	Type  Type              `json:"type"`
	Timer timer.PublicState `json:"timer"`
}

type UserUpdate struct {
	Type Type       `json:"type"`
	User UserFields `json:"user"`
}

type UserList struct{}

type Ping struct{}

// Outbound envelopes. Each embeds its own Type constant so json.Marshal
// produces a self-describing frame.

type OutSessionCreated struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId"`
}

func NewSessionCreated(sessionID, clientID string) OutSessionCreated {
	return OutSessionCreated{Type: TypeSessionCreated, SessionID: sessionID, ClientID: clientID}
}

type OutSessionJoined struct {
	Type      Type          `json:"type"`
	SessionID string        `json:"sessionId"`
	ClientID  string        `json:"clientId"`
	Session   SessionPublic `json:"session"`
}

func NewSessionJoined(sessionID, clientID string, session SessionPublic) OutSessionJoined {
	return OutSessionJoined{Type: TypeSessionJoined, SessionID: sessionID, ClientID: clientID, Session: session}
}

type OutSessionUpdated struct {
	Type      Type              `json:"type"`
	SessionID string            `json:"sessionId"`
	Session   SessionMetaPublic `json:"session"`
}

func NewSessionUpdated(sessionID string, meta SessionMetaPublic) OutSessionUpdated {
	return OutSessionUpdated{Type: TypeSessionUpdated, SessionID: sessionID, Session: meta}
}

type OutTimerUpdated struct {
	Type      Type              `json:"type"`
	SessionID string            `json:"sessionId"`
	Timer     timer.PublicState `json:"timer"`
}

func NewTimerUpdated(sessionID string, state timer.PublicState) OutTimerUpdated {
	return OutTimerUpdated{Type: TypeTimerUpdated, SessionID: sessionID, Timer: state}
}

// OutUserEvent covers user_connected, user_disconnected and user_updated,
// which all share the same {sessionId, user} shape.
type OutUserEvent struct {
	Type      Type       `json:"type"`
	SessionID string     `json:"sessionId"`
	User      UserPublic `json:"user"`
}

func NewUserEvent(t Type, sessionID string, user UserPublic) OutUserEvent {
	return OutUserEvent{Type: t, SessionID: sessionID, User: user}
}

type OutUsersConnected struct {
	Type      Type                  `json:"type"`
	SessionID string                `json:"sessionId"`
	Users     map[string]UserPublic `json:"users"`
}

func NewUsersConnected(sessionID string, users map[string]UserPublic) OutUsersConnected {
	return OutUsersConnected{Type: TypeUsersConnected, SessionID: sessionID, Users: users}
}

type OutPong struct {
	Type Type `json:"type"`
}

func NewPong() OutPong {
	return OutPong{Type: TypePong}
}

type OutError struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) OutError {
	return OutError{Type: TypeError, Message: message}
}
