package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// CooldownState is the per-identity attendance gate state.
type CooldownState int

const (
	Unseen CooldownState = iota
	Cooling
	Eligible
)

func (s CooldownState) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Cooling:
		return "cooling"
	case Eligible:
		return "eligible"
	default:
		return "unknown"
	}
}

// Cooldown remembers when each identity last had attendance recorded. It is
// owned by one pipeline and only touched from its frame goroutine. Entries are
// never removed.
type Cooldown struct {
	window time.Duration
	last   map[uuid.UUID]time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: make(map[uuid.UUID]time.Time)}
}

func (c *Cooldown) State(id uuid.UUID, t time.Time) CooldownState {
	last, ok := c.last[id]
	switch {
	case !ok:
		return Unseen
	case t.Sub(last) >= c.window:
		return Eligible
	default:
		return Cooling
	}
}

// Eligible reports whether an attendance write may be attempted at t.
func (c *Cooldown) Eligible(id uuid.UUID, t time.Time) bool {
	return c.State(id, t) != Cooling
}

// Mark starts a new window at t. Call it only after a successful write.
func (c *Cooldown) Mark(id uuid.UUID, t time.Time) {
	c.last[id] = t
}

// Len is the number of identities ever marked.
func (c *Cooldown) Len() int {
	return len(c.last)
}
