package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test-model")
	assert.NotNil(t, cb)
	assert.Equal(t, "test-model", cb.modelID)
	assert.Equal(t, CircuitClosed, cb.state)
	assert.Equal(t, 3, cb.failureThreshold)
	assert.Equal(t, 30*time.Second, cb.recoveryTimeout)
}

func TestCircuitBreaker_ShouldAttempt(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*CircuitBreaker)
		expected bool
	}{
		{"closed circuit allows attempts", func(cb *CircuitBreaker) {}, true},
		{"open circuit blocks attempts when recovery timeout not passed", func(cb *CircuitBreaker) {
			cb.state = CircuitOpen
			cb.lastFailureTime = time.Now()
		}, false},
		{"open circuit allows attempts after recovery timeout", func(cb *CircuitBreaker) {
			cb.state = CircuitOpen
			cb.lastFailureTime = time.Now().Add(-35 * time.Second)
		}, true},
		{"half-open circuit allows attempts", func(cb *CircuitBreaker) {
			cb.state = CircuitHalfOpen
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker("test-model")
			tt.setup(cb)
			assert.Equal(t, tt.expected, cb.ShouldAttempt())
		})
	}
}

func TestCircuitBreaker_RecordSuccess(t *testing.T) {
	t.Run("increments success count", func(t *testing.T) {
		cb := NewCircuitBreaker("test-model")
		cb.RecordSuccess()
		assert.Equal(t, 1, cb.successCount)
		assert.Equal(t, 1, cb.totalRequests)
		assert.Equal(t, 0, cb.failureCount)
	})

	t.Run("resets failure count on success", func(t *testing.T) {
		cb := NewCircuitBreaker("test-model")
		cb.failureCount = 2
		cb.RecordSuccess()
		assert.Equal(t, 0, cb.failureCount)
	})

	t.Run("closes circuit when successful in half-open state", func(t *testing.T) {
		cb := NewCircuitBreaker("test-model")
		cb.state = CircuitHalfOpen
		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.state)
	})
}

func TestCircuitBreaker_RecordFailure(t *testing.T) {
	t.Run("opens circuit when threshold reached", func(t *testing.T) {
		cb := NewCircuitBreaker("test-model")
		cb.RecordFailure()
		cb.RecordFailure()
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.state)
	})

	t.Run("does not open circuit before threshold", func(t *testing.T) {
		cb := NewCircuitBreaker("test-model")
		cb.RecordFailure()
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.state)
	})
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state    CircuitState
		expected string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestCircuitBreakerManager_GetBreaker(t *testing.T) {
	cbm := NewCircuitBreakerManager()

	breaker1 := cbm.GetBreaker("model-1")
	require.NotNil(t, breaker1)

	breaker2 := cbm.GetBreaker("model-1")
	assert.Same(t, breaker1, breaker2)

	breaker3 := cbm.GetBreaker("model-2")
	assert.NotSame(t, breaker1, breaker3)
}

func TestCircuitBreakerManager_GetHealthyModels(t *testing.T) {
	cbm := NewCircuitBreakerManager()

	breaker1 := cbm.GetBreaker("model-1")
	breaker2 := cbm.GetBreaker("model-2")
	breaker3 := cbm.GetBreaker("model-3")
	breaker2.state = CircuitOpen
	_ = breaker1
	_ = breaker3

	healthy := cbm.GetHealthyModels()
	assert.Len(t, healthy, 2)
	assert.Contains(t, healthy, "model-1")
	assert.Contains(t, healthy, "model-3")
	assert.NotContains(t, healthy, "model-2")
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("test-model")
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = cb.ShouldAttempt()
				_ = cb.GetState()
				_ = cb.GetStats()
			}
			done <- true
		}()
	}
	for i := 0; i < 5; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cb.RecordSuccess()
				cb.RecordFailure()
			}
			done <- true
		}()
	}
	for i := 0; i < 15; i++ {
		<-done
	}
	assert.True(t, true)
}
