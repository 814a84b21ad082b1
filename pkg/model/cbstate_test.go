package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCBStateTranslateOwnership(t *testing.T) {
	s := NewCBState()
	assert.True(t, s.Translate(1, CBClosed, CBOpen, 0))

	// a different plugin may not move it out of Open once owned
	assert.False(t, s.Translate(2, CBOpen, CBHalfOpen, 3))

	assert.True(t, s.Translate(1, CBOpen, CBHalfOpen, 3))
	value, owner, _ := s.Snapshot()
	assert.Equal(t, CBHalfOpen, value)
	assert.Equal(t, 1, owner)
}

func TestCBStateTranslateRejectsWrongFrom(t *testing.T) {
	s := NewCBState()
	assert.False(t, s.Translate(1, CBOpen, CBHalfOpen, 1))
	value, _, _ := s.Snapshot()
	assert.Equal(t, CBClosed, value)
}

func TestCBStateHalfOpenTokenBudget(t *testing.T) {
	s := NewCBState()
	s.Translate(1, CBClosed, CBOpen, 0)
	s.Translate(1, CBOpen, CBHalfOpen, 2)

	assert.True(t, s.ClaimHalfOpenToken())
	assert.True(t, s.ClaimHalfOpenToken())
	assert.False(t, s.ClaimHalfOpenToken())
}

func TestChainDataRepublishAndForget(t *testing.T) {
	c := NewChainData()
	st := c.StateFor("inst-1")
	st.Translate(0, CBClosed, CBOpen, 0)
	c.Republish()

	assert.True(t, c.IsOpen("inst-1"))
	v1 := c.CBVersion()

	c.Forget("inst-1")
	c.Republish()
	assert.False(t, c.IsOpen("inst-1"))
	assert.Greater(t, c.CBVersion(), v1)
}
