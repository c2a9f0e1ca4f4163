package broker

import (
	"time"

	"github.com/kapdap/cadence/internal/message"
)

// cleanupLoop runs the three reclamation passes on cleanupInterval until
// Stop is called.
func (b *Broker) cleanupLoop() {
	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.runCleanup()
		case <-b.stopChan:
			return
		}
	}
}

// runCleanup performs trackOffline, reapUsers, and reapSessions in order,
// each pass's view of the world built from the previous pass's writes.
func (b *Broker) runCleanup() {
	now := b.clock()
	reapedUsers := 0
	reapedSessions := 0
	onlineUsers := 0

	b.store.Range(func(_ string, sess *Session) bool {
		done := make(chan struct{})
		sess.actor.Submit(func() {
			defer close(done)
			reapedUsers += b.trackAndReapUsers(sess, now)
			for _, u := range sess.Users {
				if u.IsOnline() {
					onlineUsers++
				}
			}
		})
		<-done
		return true
	})

	b.store.Range(func(sessionID string, sess *Session) bool {
		done := make(chan struct{})
		var reap bool
		sess.actor.Submit(func() {
			defer close(done)
			reap = !anyUserOnline(sess) && sess.EmptyAt != 0 && now-sess.EmptyAt > b.sessionTimeout.Milliseconds()
		})
		<-done
		if reap {
			b.store.Delete(sessionID)
			reapedSessions++
		}
		return true
	})

	if b.metrics != nil {
		if reapedUsers > 0 {
			b.metrics.UsersReaped(reapedUsers)
		}
		if reapedSessions > 0 {
			b.metrics.SessionsReaped(reapedSessions)
		}
		b.metrics.SessionsActive(b.store.Len())
		b.metrics.UsersOnline(onlineUsers)
	}
}

// trackAndReapUsers runs the trackOffline and reapUsers passes for one
// session and returns how many users it removed.
func (b *Broker) trackAndReapUsers(sess *Session, now int64) int {
	for _, u := range sess.Users {
		if u.IsOnline() {
			u.OfflineAt = 0
		} else if u.OfflineAt == 0 {
			u.OfflineAt = now
		}
	}

	reaped := 0
	for clientID, u := range sess.Users {
		if u.IsOnline() || u.OfflineAt == 0 {
			continue
		}
		if now-u.OfflineAt <= b.cleanupInterval.Milliseconds() {
			continue
		}
		delete(sess.Users, clientID)
		reaped++
		b.broadcast(sess, message.NewUserEvent(message.TypeUserDisconnected, sess.ID, userPublic(u)), "", "")
	}

	if !anyUserOnline(sess) && sess.EmptyAt == 0 {
		sess.EmptyAt = now
	}

	return reaped
}
