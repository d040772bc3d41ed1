package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	p := NewRetryPolicy(80)

	assert.True(t, p.ShouldRetry(79.9, false), "below threshold triggers retry")
	assert.False(t, p.ShouldRetry(80, false), "exactly at threshold does not retry")
	assert.False(t, p.ShouldRetry(95, false), "high confidence does not retry")

	// The accurate engine is final: its output is adopted even when its
	// confidence is still low.
	assert.False(t, p.ShouldRetry(50, true))
}

func TestNewRetryPolicyDefault(t *testing.T) {
	assert.Equal(t, DefaultConfidenceThreshold, NewRetryPolicy(0).Threshold)
	assert.Equal(t, DefaultConfidenceThreshold, NewRetryPolicy(-1).Threshold)
	assert.Equal(t, 70.0, NewRetryPolicy(70).Threshold)
}
