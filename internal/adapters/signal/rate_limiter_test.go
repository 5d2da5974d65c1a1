package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("blocks past the limit", func(t *testing.T) {
		rl := NewRateLimiter(3, time.Minute)
		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("tok"))
		}
		assert.False(t, rl.Allow("tok"))
	})

	t.Run("tokens are independent", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("window slides", func(t *testing.T) {
		rl := NewRateLimiter(1, 30*time.Millisecond)
		assert.True(t, rl.Allow("tok"))
		assert.False(t, rl.Allow("tok"))
		time.Sleep(50 * time.Millisecond)
		assert.True(t, rl.Allow("tok"))
	})
}
