package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayForAttemptFirstAttemptIsImmediate(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Duration(0), p.DelayForAttempt(1))
}

func TestDelayForAttemptGrowsExponentiallyWithinJitter(t *testing.T) {
	p := DefaultRetryPolicy()

	d2 := p.DelayForAttempt(2)
	assert.InDelta(t, float64(p.BaseDelay), float64(d2), float64(p.Jitter))

	d3 := p.DelayForAttempt(3)
	assert.InDelta(t, float64(2*p.BaseDelay), float64(d3), float64(p.Jitter))
}

func TestDelayForAttemptCapsAtMaxDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 3 * time.Second, Jitter: 0}
	assert.Equal(t, 3*time.Second, p.DelayForAttempt(10))
}

func TestDefaultRetryPolicyMatchesDocumentedEnvelope(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 250*time.Millisecond, p.Jitter)
}
