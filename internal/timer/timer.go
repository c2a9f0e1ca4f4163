// Package timer implements the authoritative interval timer state machine
// shared by every participant in a session. It is pure and synchronous:
// every mutation is a function of the current state plus a single injected
// clock reading, which keeps it deterministic under test.
package timer

// Clock returns the current wall-clock time in milliseconds since epoch.
// Production callers pass a wrapper around time.Now, tests pass a fake.
type Clock func() int64

const (
	// DefaultDurationSeconds is used whenever the interval list is empty.
	DefaultDurationSeconds = 1500
	MinDurationSeconds     = 1
	MaxDurationSeconds     = 86400
)

// Interval is one step in a session's cycle.
type Interval struct {
	Name      string `json:"name"`
	Duration  int    `json:"duration"` // seconds
	Alert     string `json:"alert"`
	CustomCSS string `json:"customCSS"`
}

// PublicState is the wire-visible timer snapshot.
type PublicState struct {
	Repeat    bool  `json:"repeat"`
	Interval  int   `json:"interval"`
	Remaining int64 `json:"remaining"`
	IsRunning bool  `json:"isRunning"`
	IsPaused  bool  `json:"isPaused"`
}

// PartialState carries only the fields a caller wants to overwrite via
// SetState. Nil fields are left untouched.
type PartialState struct {
	Repeat    *bool
	Interval  *int
	Remaining *int64
	IsRunning *bool
	IsPaused  *bool
}

// Core is the timer state machine bound to one session's interval list.
// Callers are responsible for serializing access to a Core; it performs no
// locking of its own.
type Core struct {
	clock Clock
	items []Interval

	repeat    bool
	interval  int
	remaining int64

	isRunning bool
	isPaused  bool

	startedInterval int
	startedAt       int64
	pausedAt        int64
	timePaused      int64
}

// New creates a Core bound to items, with the timer stopped at interval 0.
func New(clock Clock, items []Interval) *Core {
	c := &Core{clock: clock, items: items}
	c.remaining = c.durationMs(0)
	return c
}

// Start begins or resumes the timer. A paused timer resumes instead of
// re-anchoring; an already-running, non-paused timer is left untouched.
func (c *Core) Start() PublicState {
	if c.isPaused {
		// Resume clears isPaused/pausedAt and leaves isRunning as it is;
		// don't fall through.
		return c.Resume()
	}
	if !c.isRunning {
		c.startedInterval = c.interval
		c.startedAt = c.clock()
		c.timePaused = 0
	}
	c.isRunning = true
	c.isPaused = false
	c.pausedAt = 0
	return c.snapshot()
}

// Pause freezes the running timer. It is tolerated on a stopped timer too,
// producing a degenerate state that Resume can unwind.
func (c *Core) Pause() PublicState {
	c.isPaused = true
	c.pausedAt = c.clock()
	return c.snapshot()
}

// Stop resets the timer to interval 0, preserving the repeat flag.
func (c *Core) Stop() PublicState {
	c.interval = 0
	c.remaining = c.durationMs(0)
	c.isRunning = false
	c.isPaused = false
	c.startedAt = 0
	c.startedInterval = 0
	c.pausedAt = 0
	c.timePaused = 0
	return c.snapshot()
}

// Repeat toggles the repeat flag when value is nil, else sets it directly.
func (c *Core) Repeat(value *bool) PublicState {
	if value == nil {
		c.repeat = !c.repeat
	} else {
		c.repeat = *value
	}
	return c.snapshot()
}

// Next advances to the following interval, wrapping modulo the list length.
func (c *Core) Next() PublicState {
	n := c.length()
	c.interval = (c.interval + 1) % n
	c.remaining = c.durationMs(c.interval)
	if c.isRunning {
		c.startedInterval = c.interval
		c.startedAt = c.clock()
		c.timePaused = 0
		if c.isPaused {
			c.pausedAt = c.clock()
		} else {
			c.pausedAt = 0
		}
	}
	return c.snapshot()
}

// Resume un-pauses a paused timer, folding the pause duration into
// timePaused so elapsed-time accounting excludes it. A no-op when not
// paused.
func (c *Core) Resume() PublicState {
	if c.isPaused {
		c.timePaused += c.clock() - c.pausedAt
		c.pausedAt = 0
		c.isPaused = false
	}
	return c.snapshot()
}

// Sync recomputes the authoritative (interval, remaining) from the running
// baseline and wall-clock time, wrapping or stopping at the end of the
// list. It is the only place elapsed real time is reconciled against the
// interval durations.
func (c *Core) Sync() PublicState {
	if !c.isRunning || c.startedAt == 0 || len(c.items) == 0 {
		return c.snapshot()
	}

	now := c.clock()
	var offset int64
	if c.isPaused && c.pausedAt > 0 {
		offset = now - c.pausedAt
	}
	elapsed := now - c.startedAt - c.timePaused - offset

	n := len(c.items)
	current := c.startedInterval % n
	if current < 0 {
		current += n
	}

	for {
		d := c.durationMs(current)
		if elapsed < d {
			break
		}
		elapsed -= d
		current++
		if current >= n {
			if c.repeat {
				current = 0
				continue
			}
			return c.Stop()
		}
	}

	c.interval = current
	c.remaining = c.durationMs(current) - elapsed
	return c.snapshot()
}

// UpdateIntervals rebinds the timer to a new interval list, re-baselining
// the running clock so that elapsed time already spent in the current
// interval is preserved against the new durations.
func (c *Core) UpdateIntervals(newItems []Interval) PublicState {
	c.items = newItems
	n := c.length()

	if c.interval >= n {
		c.interval = 0
		c.remaining = c.durationMs(0)
		if c.startedAt != 0 {
			c.startedAt = c.clock()
		}
		if c.pausedAt != 0 {
			c.pausedAt = c.clock()
		}
		return c.snapshot()
	}

	if c.isRunning {
		now := c.clock()
		elapsed := now - c.startedAt - c.timePaused
		newDuration := c.durationMs(c.interval)

		c.startedAt = now - elapsed
		c.startedInterval = c.interval
		c.timePaused = 0
		if c.isPaused {
			c.pausedAt = now
		} else {
			c.pausedAt = 0
		}

		if c.remaining > newDuration {
			c.remaining = newDuration
			c.startedAt = now
		}
		return c.snapshot()
	}

	c.remaining = c.durationMs(c.interval)
	return c.snapshot()
}

// UpdateState imports a peer's view of the timer wholesale, re-deriving the
// internal baseline so a subsequent Sync reproduces the imported values.
func (c *Core) UpdateState(external PublicState) PublicState {
	c.repeat = external.Repeat
	c.interval = external.Interval
	c.remaining = external.Remaining
	c.isRunning = external.IsRunning
	c.isPaused = external.IsPaused

	now := c.clock()
	elapsed := c.durationMs(c.interval) - c.remaining
	c.startedInterval = c.interval

	if c.isRunning {
		c.startedAt = now - elapsed
	} else {
		c.startedAt = 0
	}
	if c.isPaused {
		c.pausedAt = now
	} else {
		c.pausedAt = 0
	}
	c.timePaused = 0

	return c.snapshot()
}

// GetState returns the current public snapshot without mutating anything.
func (c *Core) GetState() PublicState {
	return c.snapshot()
}

// SetState shallow-merges the given fields with no re-baselining. Intended
// for tests and for restoring a previously captured snapshot verbatim.
func (c *Core) SetState(p PartialState) PublicState {
	if p.Repeat != nil {
		c.repeat = *p.Repeat
	}
	if p.Interval != nil {
		c.interval = *p.Interval
	}
	if p.Remaining != nil {
		c.remaining = *p.Remaining
	}
	if p.IsRunning != nil {
		c.isRunning = *p.IsRunning
	}
	if p.IsPaused != nil {
		c.isPaused = *p.IsPaused
	}
	return c.snapshot()
}

func (c *Core) snapshot() PublicState {
	return PublicState{
		Repeat:    c.repeat,
		Interval:  c.interval,
		Remaining: c.remaining,
		IsRunning: c.isRunning,
		IsPaused:  c.isPaused,
	}
}

func (c *Core) length() int {
	if len(c.items) == 0 {
		return 1
	}
	return len(c.items)
}

func (c *Core) durationMs(i int) int64 {
	if i < 0 || i >= len(c.items) {
		return DefaultDurationSeconds * 1000
	}
	return int64(c.items[i].Duration) * 1000
}
