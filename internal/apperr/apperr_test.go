package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksChain(t *testing.T) {
	base := Conflict("already_resolved", "report already reviewed")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "already_resolved", CodeOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Empty(t, CodeOf(errors.New("boom")))
}

func TestWrapKeepsSentinelReachable(t *testing.T) {
	err := NotFound("material_not_found", "material not found").Wrap(ErrNotFound)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "material not found")
}

func TestAfterDoesNotMutateOriginal(t *testing.T) {
	base := RateLimit("report_cooldown", "slow down")
	withDelay := base.After(42 * time.Second)

	assert.Zero(t, base.RetryAfter)
	assert.Equal(t, 42*time.Second, withDelay.RetryAfter)
	assert.Equal(t, KindRateLimit, KindOf(withDelay))
}
