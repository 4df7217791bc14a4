package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchByKind(t *testing.T) {
	err := NotFound("claims.get", "claim %s not found", "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, "claims.get: claim abc not found", err.Error())
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := Busy("lock", "item locked")
	wrapped := fmt.Errorf("failed to decide claim: %w", inner)

	assert.Equal(t, KindBusy, KindOf(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(KindConflict, "op", nil))

	cause := errors.New("version mismatch")
	err := Wrap(KindConflict, "items.save", cause)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRetryable(InvalidState("op", "nope")))
}
