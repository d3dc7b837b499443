package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCooldown_States(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	id := uuid.New()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, Unseen, c.State(id, t0))
	assert.True(t, c.Eligible(id, t0))

	c.Mark(id, t0)
	assert.Equal(t, Cooling, c.State(id, t0.Add(4*time.Second)))
	assert.False(t, c.Eligible(id, t0.Add(4*time.Second)))
	assert.False(t, c.Eligible(id, t0.Add(10*time.Second-time.Nanosecond)))

	assert.Equal(t, Eligible, c.State(id, t0.Add(10*time.Second)))
	assert.True(t, c.Eligible(id, t0.Add(11*time.Second)))
}

func TestCooldown_EligibleDoesNotMark(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	id := uuid.New()
	t0 := time.Now()

	assert.True(t, c.Eligible(id, t0))
	assert.True(t, c.Eligible(id, t0.Add(time.Second)), "checking alone never starts a window")
	assert.Zero(t, c.Len())
}

func TestCooldown_IdentitiesAreIndependent(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	a, b := uuid.New(), uuid.New()
	t0 := time.Now()

	c.Mark(a, t0)
	assert.False(t, c.Eligible(a, t0.Add(time.Second)))
	assert.True(t, c.Eligible(b, t0.Add(time.Second)))
	assert.Equal(t, 1, c.Len())
}

func TestCooldown_MarkRestartsWindow(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	id := uuid.New()
	t0 := time.Now()

	c.Mark(id, t0)
	c.Mark(id, t0.Add(11*time.Second))
	assert.Equal(t, Cooling, c.State(id, t0.Add(15*time.Second)))
	assert.Equal(t, Eligible, c.State(id, t0.Add(21*time.Second)))
}

func TestCooldownState_String(t *testing.T) {
	assert.Equal(t, "unseen", Unseen.String())
	assert.Equal(t, "cooling", Cooling.String())
	assert.Equal(t, "eligible", Eligible.String())
}
