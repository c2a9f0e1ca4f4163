package broker

import (
	"github.com/kapdap/cadence/internal/message"
	"github.com/kapdap/cadence/internal/timer"
	"github.com/kapdap/cadence/internal/workerpool"
)

// User is one participant's record within a session, keyed by its raw
// clientId. The raw id never leaves this struct; everything exposed to
// peers goes through identity.HashClientID first.
type User struct {
	ClientID  string
	Name      string
	AvatarURL string
	Sockets   map[string]struct{}
	LastPing  int64
	OfflineAt int64 // 0 means online
}

// IsOnline reports whether the user has at least one live socket.
func (u *User) IsOnline() bool {
	return len(u.Sockets) > 0
}

// Session is the broker's internal record for one room: its metadata,
// interval list, authoritative timer, and user roster. All mutation is
// serialized through actor.
type Session struct {
	ID          string
	Name        string
	Description string
	Intervals   message.IntervalList
	TimerCore   *timer.Core

	Users map[string]*User // clientId -> User

	CreatedAt    int64
	LastActivity int64
	EmptyAt      int64 // 0 means not empty

	actor *workerpool.Pool
}

func newSession(id string, fields message.SessionFields, externalTimer timer.PublicState, clock timer.Clock) *Session {
	core := timer.New(clock, fields.Intervals.Items)
	core.UpdateState(externalTimer)
	now := clock()
	return &Session{
		ID:           id,
		Name:         fields.Name,
		Description:  fields.Description,
		Intervals:    fields.Intervals,
		TimerCore:    core,
		Users:        make(map[string]*User),
		CreatedAt:    now,
		LastActivity: now,
		actor:        newActor(),
	}
}

func anyUserOnline(sess *Session) bool {
	for _, u := range sess.Users {
		if u.IsOnline() {
			return true
		}
	}
	return false
}
