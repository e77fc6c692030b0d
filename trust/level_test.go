package trust

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelOrdering(t *testing.T) {
	assert.True(t, None < Pending)
	assert.True(t, Pending < Additional)
	assert.True(t, Additional < Glue)
	assert.True(t, Glue < Answer)
	assert.True(t, Answer < AuthAuthority)
	assert.True(t, AuthAuthority < AuthAnswer)
	assert.True(t, AuthAnswer < Secure)
	assert.True(t, Secure < Ultimate)
}

func TestPredicates(t *testing.T) {
	assert.True(t, Pending.IsPending())
	assert.False(t, Answer.IsPending())

	assert.True(t, Answer.IsAnswer())
	assert.True(t, AuthAnswer.IsAnswer())
	assert.False(t, AuthAuthority.IsAnswer())

	assert.True(t, Secure.IsSecure())
	assert.True(t, Ultimate.IsSecure())
	assert.False(t, Answer.IsSecure())
}

func TestMarkSecure(t *testing.T) {
	s := &Set{Data: Pending, Signature: Pending}
	raised := s.MarkSecure()
	assert.True(t, raised)
	assert.Equal(t, Secure, s.Data)
	assert.Equal(t, Secure, s.Signature)

	// Marking an already-secure set again is a no-op, reported as such.
	raised = s.MarkSecure()
	assert.False(t, raised)
}

func TestMarkAnswer(t *testing.T) {
	s := &Set{Data: Pending, Signature: Pending}
	err := s.MarkAnswer(false)
	assert.NoError(t, err)
	assert.Equal(t, Answer, s.Data)
	assert.Equal(t, Answer, s.Signature)

	s2 := &Set{Data: Pending, Signature: Pending}
	err = s2.MarkAnswer(true)
	assert.True(t, errors.Is(err, ErrMustBeSecure))
	// Trust is left unchanged when must-be-secure fires.
	assert.Equal(t, Pending, s2.Data)
}
