// Package broker implements the session broker: message dispatch, the
// session store, broadcast fan-out, and time-based cleanup. It is the
// only component that mutates session state; the transport layer only
// ever hands it raw frames and socket lifecycle events.
package broker

import (
	"sync"
	"time"

	"github.com/kapdap/cadence/internal/identity"
	"github.com/kapdap/cadence/internal/logging"
	"github.com/kapdap/cadence/internal/message"
	"github.com/kapdap/cadence/internal/timer"
)

var log = logging.L("broker")

// Sender is the broker's view of a transport connection: enough to route a
// frame to it and identify which socket it is. Transport connections
// implement it; the broker never reaches further into a connection.
type Sender interface {
	SocketID() string
	Send(frame []byte)
}

// Metrics is the subset of observability the broker emits. Satisfied
// structurally by internal/metrics.Collector; nil is a valid Metrics (all
// calls become no-ops via the Broker's nil check).
type Metrics interface {
	SessionsActive(n int)
	UsersOnline(n int)
	MessageReceived(msgType string)
	Broadcast(msgType string)
	SessionsReaped(n int)
	UsersReaped(n int)
}

type socketBinding struct {
	sessionID string
	clientID  string
}

// Broker dispatches inbound messages, mutates sessions via their actors,
// fans out broadcasts, and runs the periodic cleanup ticker.
type Broker struct {
	store *Store
	clock timer.Clock

	cleanupInterval time.Duration
	sessionTimeout  time.Duration
	metrics         Metrics

	mu       sync.Mutex
	conns    map[string]Sender
	bindings map[string]socketBinding

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a Broker. clock is injected for deterministic tests;
// production callers pass a wrapper around time.Now in milliseconds.
func New(clock timer.Clock, cleanupInterval, sessionTimeout time.Duration, metrics Metrics) *Broker {
	return &Broker{
		store:           NewStore(),
		clock:           clock,
		cleanupInterval: cleanupInterval,
		sessionTimeout:  sessionTimeout,
		metrics:         metrics,
		conns:           make(map[string]Sender),
		bindings:        make(map[string]socketBinding),
		stopChan:        make(chan struct{}),
	}
}

// Start launches the periodic cleanup ticker. Call once after New.
func (b *Broker) Start() {
	go b.cleanupLoop()
}

// Stop halts the cleanup ticker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
}

// RegisterConn makes conn known to the broker so it can receive broadcasts.
// Call before handing the connection its first frame.
func (b *Broker) RegisterConn(conn Sender) {
	b.mu.Lock()
	b.conns[conn.SocketID()] = conn
	b.mu.Unlock()
}

// RemoveConn tears down bookkeeping for a closed connection: it drops the
// socket from its user's socket set and, if that was the user's last
// socket, marks the user offline and broadcasts the change.
func (b *Broker) RemoveConn(socketID string) {
	b.mu.Lock()
	delete(b.conns, socketID)
	binding, ok := b.bindings[socketID]
	if ok {
		delete(b.bindings, socketID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	sess, found := b.store.Get(binding.sessionID)
	if !found {
		return
	}
	sess.actor.Submit(func() {
		b.removeSocketFromSession(sess, binding.clientID, socketID)
	})
}

func (b *Broker) removeSocketFromSession(sess *Session, clientID, socketID string) {
	user, ok := sess.Users[clientID]
	if !ok {
		return
	}
	delete(user.Sockets, socketID)
	if len(user.Sockets) > 0 {
		return
	}

	now := b.clock()
	user.OfflineAt = now
	b.broadcast(sess, message.NewUserEvent(message.TypeUserUpdated, sess.ID, userPublic(user)), "", "")

	if !anyUserOnline(sess) && sess.EmptyAt == 0 {
		sess.EmptyAt = now
	}
}

// HandleFrame decodes raw and dispatches it. Parse and validation failures
// are answered with an error frame on conn; nothing ever closes the
// connection from here.
func (b *Broker) HandleFrame(conn Sender, raw []byte) {
	msg, codecErr := message.Decode(raw)
	if codecErr != nil {
		b.sendTo(conn, message.NewError(codecErr.Reason))
		return
	}

	switch m := msg.(type) {
	case message.Ping:
		b.sendTo(conn, message.NewPong())
	case message.SessionJoin:
		b.recordMetric(string(message.TypeSessionJoin))
		b.handleSessionJoin(conn, m)
	case message.SessionUpdate:
		b.recordMetric(string(message.TypeSessionUpdate))
		b.handleSessionUpdate(conn, m)
	case message.TimerUpdate:
		b.recordMetric(string(message.TypeTimerUpdate))
		b.handleTimerUpdate(conn, m)
	case message.UserUpdate:
		b.recordMetric(string(message.TypeUserUpdate))
		b.handleUserUpdate(conn, m)
	case message.UserList:
		b.recordMetric(string(message.TypeUserList))
		b.handleUserList(conn)
	default:
		b.sendTo(conn, message.NewError(reasonUnknownType))
	}
}

func (b *Broker) recordMetric(msgType string) {
	if b.metrics != nil {
		b.metrics.MessageReceived(msgType)
	}
}

// withSession resolves the session bound to conn's socket and runs fn on
// it via that session's actor. Sockets with no binding (never joined, or
// joined a since-reaped session) get "Session not found".
func (b *Broker) withSession(conn Sender, fn func(*Session)) {
	socketID := conn.SocketID()
	b.mu.Lock()
	binding, ok := b.bindings[socketID]
	b.mu.Unlock()
	if !ok {
		b.sendTo(conn, message.NewError(reasonSessionNotFound))
		return
	}

	sess, found := b.store.Get(binding.sessionID)
	if !found {
		b.sendTo(conn, message.NewError(reasonSessionNotFound))
		return
	}

	if !sess.actor.Submit(func() { fn(sess) }) {
		log.Warn("session actor queue full, dropping message", "sessionId", sess.ID)
	}
}

func (b *Broker) sendTo(conn Sender, v any) {
	frame, err := message.Encode(v)
	if err != nil {
		log.Error("encode outbound message failed", "error", err)
		return
	}
	conn.Send(frame)
}

// broadcast fans a message out to every socket of every user in sess,
// except the one matching excludeSocketID (same connection) or
// ignoreClientID (same user across all its sockets). Either may be empty
// to skip that filter. Sockets with no registered connection (already
// closed) are silently skipped.
func (b *Broker) broadcast(sess *Session, out any, excludeSocketID, ignoreClientID string) {
	frame, err := message.Encode(out)
	if err != nil {
		log.Error("encode outbound message failed", "error", err)
		return
	}

	b.mu.Lock()
	recipients := make([]Sender, 0, len(sess.Users))
	for _, u := range sess.Users {
		if ignoreClientID != "" && u.ClientID == ignoreClientID {
			continue
		}
		for socketID := range u.Sockets {
			if socketID == excludeSocketID {
				continue
			}
			if c, ok := b.conns[socketID]; ok {
				recipients = append(recipients, c)
			}
		}
	}
	b.mu.Unlock()

	for _, c := range recipients {
		c.Send(frame)
	}

	if b.metrics != nil {
		b.metrics.Broadcast(msgTypeOf(out))
	}
}

func msgTypeOf(v any) string {
	switch m := v.(type) {
	case message.OutSessionUpdated:
		return string(m.Type)
	case message.OutTimerUpdated:
		return string(m.Type)
	case message.OutUserEvent:
		return string(m.Type)
	default:
		return "unknown"
	}
}

func userPublic(u *User) message.UserPublic {
	return message.UserPublic{
		ClientID:  identity.HashClientID(u.ClientID),
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		IsOnline:  u.IsOnline(),
	}
}

func (b *Broker) sessionSnapshot(sess *Session) message.SessionPublic {
	users := make(map[string]message.UserPublic, len(sess.Users))
	for _, u := range sess.Users {
		users[identity.HashClientID(u.ClientID)] = userPublic(u)
	}
	return message.SessionPublic{
		SessionID:   sess.ID,
		Name:        sess.Name,
		Description: sess.Description,
		Intervals:   sess.Intervals,
		Timer:       sess.TimerCore.Sync(),
		Users:       users,
	}
}

// Lookup returns the sanitized external snapshot of a session by id, for
// the public HTTP read API. The second return is false if no such session
// exists.
func (b *Broker) Lookup(sessionID string) (message.SessionPublic, bool) {
	sess, ok := b.store.Get(sessionID)
	if !ok {
		return message.SessionPublic{}, false
	}

	var snapshot message.SessionPublic
	done := make(chan struct{})
	sess.actor.Submit(func() {
		defer close(done)
		snapshot = b.sessionSnapshot(sess)
	})
	<-done
	return snapshot, true
}
