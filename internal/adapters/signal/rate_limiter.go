package signal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/WatchSync/internal/domain"
)

// RoomRateLimiter is a sliding-window limit on playback actions per member.
type RoomRateLimiter struct {
	clock    clockwork.Clock
	mu       sync.Mutex
	history  map[domain.MemberID][]time.Time
	limit    int
	interval time.Duration
}

func NewRoomRateLimiter(clock clockwork.Clock, limit int, interval time.Duration) *RoomRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomRateLimiter{
		clock:    clock,
		history:  make(map[domain.MemberID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RoomRateLimiter) Allow(id domain.MemberID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops a member's history once it disconnects.
func (rl *RoomRateLimiter) Forget(id domain.MemberID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
