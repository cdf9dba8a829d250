package signal

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRoomRateLimiter(clock, 3, time.Second)

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("m1"))
	}
	require.False(t, rl.Allow("m1"))
	require.True(t, rl.Allow("m2"), "limits are per member")

	clock.Advance(1001 * time.Millisecond)
	require.True(t, rl.Allow("m1"))
}

func TestRateLimiterForget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRoomRateLimiter(clock, 1, time.Minute)
	require.True(t, rl.Allow("m1"))
	require.False(t, rl.Allow("m1"))

	rl.Forget("m1")
	require.True(t, rl.Allow("m1"))
}
