package broker

import "github.com/kapdap/cadence/internal/workerpool"

// actorQueueSize bounds how many pending mutations a single session's actor
// will hold before Submit starts rejecting work.
const actorQueueSize = 128

// newActor returns a single-worker pool that serializes all mutations to
// one session's state, so concurrent messages from different sockets of
// the same session never race.
func newActor() *workerpool.Pool {
	return workerpool.New(1, actorQueueSize)
}
