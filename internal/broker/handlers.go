package broker

import (
	"github.com/kapdap/cadence/internal/identity"
	"github.com/kapdap/cadence/internal/message"
	"github.com/kapdap/cadence/internal/timer"
)

// handleSessionJoin implements create-or-join: a socket names a sessionId,
// creates it if unseen, attaches to (or creates) the user identified by
// clientId, and announces the new connection to the rest of the session.
func (b *Broker) handleSessionJoin(conn Sender, in message.SessionJoin) {
	clientID := identity.FormatClientID(in.User.ClientID)
	socketID := conn.SocketID()

	sess, isNew := b.store.GetOrCreate(in.SessionID, b.clock(), func() *Session {
		return newSession(in.SessionID, in.Session, in.Timer, b.clock)
	})

	b.mu.Lock()
	b.bindings[socketID] = socketBinding{sessionID: sess.ID, clientID: clientID}
	b.mu.Unlock()

	sess.actor.Submit(func() {
		sess.TimerCore.Sync()

		user, existed := sess.Users[clientID]
		wasOffline := !existed || !user.IsOnline()
		if !existed {
			user = &User{
				ClientID: clientID,
				Sockets:  make(map[string]struct{}),
			}
			sess.Users[clientID] = user
		}
		user.Name = in.User.Name
		user.AvatarURL = in.User.AvatarURL
		user.Sockets[socketID] = struct{}{}
		user.LastPing = b.clock()
		user.OfflineAt = 0

		sess.EmptyAt = 0

		snapshot := b.sessionSnapshot(sess)
		hashedID := identity.HashClientID(clientID)
		if isNew {
			b.sendTo(conn, message.NewSessionCreated(sess.ID, hashedID))
		} else {
			b.sendTo(conn, message.NewSessionJoined(sess.ID, hashedID, snapshot))
		}

		if wasOffline {
			b.broadcast(sess, message.NewUserEvent(message.TypeUserConnected, sess.ID, userPublic(user)), socketID, clientID)
		}
	})
}

// handleSessionUpdate implements the metadata/interval-list mutation path:
// overwrite session fields, rebind the timer to the new interval list, then
// broadcast the two resulting snapshots in fixed order.
func (b *Broker) handleSessionUpdate(conn Sender, in message.SessionUpdate) {
	b.withSession(conn, func(sess *Session) {
		sess.Name = in.Session.Name
		sess.Description = in.Session.Description
		sess.Intervals = in.Session.Intervals
		sess.TimerCore.UpdateIntervals(in.Session.Intervals.Items)

		var synced timer.PublicState
		if in.Timer != nil {
			synced = sess.TimerCore.UpdateState(*in.Timer)
		} else {
			synced = sess.TimerCore.Sync()
		}

		sess.LastActivity = b.clock()

		socketID := conn.SocketID()
		meta := message.SessionMetaPublic{
			Name:        sess.Name,
			Description: sess.Description,
			Intervals:   sess.Intervals,
		}
		b.broadcast(sess, message.NewSessionUpdated(sess.ID, meta), socketID, "")
		b.broadcast(sess, message.NewTimerUpdated(sess.ID, synced), socketID, "")
	})
}

// handleTimerUpdate applies a peer-driven timer transition (start, pause,
// stop, next, repeat toggle) and fans out the post-sync state.
func (b *Broker) handleTimerUpdate(conn Sender, in message.TimerUpdate) {
	b.withSession(conn, func(sess *Session) {
		synced := sess.TimerCore.UpdateState(in.Timer)
		socketID := conn.SocketID()
		b.broadcast(sess, message.NewTimerUpdated(sess.ID, synced), socketID, "")
	})
}

// handleUserUpdate lets a user edit its own display name/avatar.
func (b *Broker) handleUserUpdate(conn Sender, in message.UserUpdate) {
	b.withSession(conn, func(sess *Session) {
		socketID := conn.SocketID()
		b.mu.Lock()
		binding := b.bindings[socketID]
		b.mu.Unlock()

		user, ok := sess.Users[binding.clientID]
		if !ok {
			return
		}
		user.Name = in.User.Name
		user.AvatarURL = in.User.AvatarURL

		b.broadcast(sess, message.NewUserEvent(message.TypeUserUpdated, sess.ID, userPublic(user)), socketID, "")
	})
}

// handleUserList answers the requester alone with the full externalized
// roster; it never broadcasts.
func (b *Broker) handleUserList(conn Sender) {
	b.withSession(conn, func(sess *Session) {
		users := make(map[string]message.UserPublic, len(sess.Users))
		for _, u := range sess.Users {
			users[identity.HashClientID(u.ClientID)] = userPublic(u)
		}
		b.sendTo(conn, message.NewUsersConnected(sess.ID, users))
	})
}
