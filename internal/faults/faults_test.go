package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidation("component_scores", "moat %.1f out of range", 104.5)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "component_scores")
	assert.Contains(t, err.Error(), "104.5")

	wrapped := fmt.Errorf("scoring listing: %w", err)
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsValidation(errors.New("plain")))
}

func TestCapabilityError(t *testing.T) {
	t.Parallel()

	inner := errors.New("upstream 503")
	err := NewCapability("market_structure", inner)
	assert.True(t, IsCapability(err))
	assert.False(t, IsCapabilityTimeout(err))
	assert.ErrorIs(t, err, inner)

	to := NewCapabilityTimeout("monetization", errors.New("deadline exceeded"))
	assert.True(t, IsCapabilityTimeout(to))
	assert.Contains(t, to.Error(), "timeout")
	assert.Contains(t, to.Error(), "monetization")
}

func TestConflictError(t *testing.T) {
	t.Parallel()

	err := &ConflictError{Key: "flippa:99", Attempts: 5}
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "flippa:99")
	assert.False(t, IsConflict(errors.New("plain")))
}

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := NewConfig("scoring", "weights sum to %.4f, want 1.0", 0.95)
	assert.True(t, IsConfig(err))
	assert.Contains(t, err.Error(), "scoring")
	assert.Contains(t, err.Error(), "0.95")
}
