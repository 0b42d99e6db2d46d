package faulttolerance

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_ExponentialWithoutJitter(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Jitter = false

	assert.Equal(t, time.Second, p.Delay(1, 0))
	assert.Equal(t, 2*time.Second, p.Delay(2, 0))
	assert.Equal(t, 4*time.Second, p.Delay(3, 0))
}

func TestDelay_CapsAtMaxDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Jitter = false
	p.MaxDelay = 3 * time.Second

	assert.Equal(t, 3*time.Second, p.Delay(5, 0))
}

func TestDelay_LinearWithoutJitter(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Strategy = StrategyLinear
	p.Jitter = false

	assert.Equal(t, time.Second, p.Delay(1, 0))
	assert.Equal(t, 2*time.Second, p.Delay(2, 0))
	assert.Equal(t, 3*time.Second, p.Delay(3, 0))
}

func TestDelay_JitterIsOneSidedAndBounded(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Jitter = true

	base := time.Second
	for i := 0; i < 50; i++ {
		d := p.Delay(1, 0)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Duration(float64(base)*0.1)+time.Millisecond)
	}
}

func TestDelay_RetryAfterOverridesComputedDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 30*time.Second, p.Delay(1, 30*time.Second))
}

func TestShouldRetryStatusCode(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.ShouldRetryStatusCode(http.StatusTooManyRequests))
	assert.False(t, p.ShouldRetryStatusCode(http.StatusOK))
}

func TestAggressiveAndConservativePolicies(t *testing.T) {
	aggressive := AggressiveRetryPolicy()
	conservative := ConservativeRetryPolicy()

	assert.Greater(t, aggressive.MaxRetries, conservative.MaxRetries)
	assert.Less(t, aggressive.BaseDelay, conservative.BaseDelay)
}
