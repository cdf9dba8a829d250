package sched

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/metrics"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

type staticRooms []*core.Room

func (s staticRooms) Rooms() []*core.Room { return s }

type recPublisher struct {
	mu  sync.Mutex
	evs map[domain.RoomCode][]core.Evaluation
}

func (p *recPublisher) PublishEvaluation(room *core.Room, ev core.Evaluation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.evs == nil {
		p.evs = map[domain.RoomCode][]core.Evaluation{}
	}
	p.evs[room.Code()] = append(p.evs[room.Code()], ev)
}

func (p *recPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evs := range p.evs {
		n += len(evs)
	}
	return n
}

func room(t *testing.T, code string, now time.Time) *core.Room {
	t.Helper()
	m, err := domain.NewMember(domain.MemberID(code+"-host"), "")
	require.NoError(t, err)
	return core.NewRoom(domain.RoomCode(code), core.NewMemberSession(m, nopConn{}), now)
}

func TestTickEvaluatesEveryRoom(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := metrics.New(prometheus.NewRegistry())
	var rooms staticRooms
	for i := 0; i < 10; i++ {
		r := room(t, fmt.Sprintf("R%05d", i), clock.Now())
		host := domain.MemberID(fmt.Sprintf("R%05d-host", i))
		// even rooms report in sync, odd rooms lag by 1s
		pos := 0.0
		if i%2 == 1 {
			pos = 1
		}
		require.True(t, r.Report(host, pos, false, 1, clock.Now()))
		rooms = append(rooms, r)
	}
	pub := &recPublisher{}
	s := New(rooms, pub, Options{Clock: clock, Params: core.DefaultSyncParams(), Workers: 3, Metrics: m})

	evs := s.Tick(clock.Now())
	require.Len(t, evs, 10)
	require.Equal(t, 10, pub.total())
	require.Equal(t, 5.0, testutil.ToFloat64(m.RoomsSynced))

	corrections := 0
	for _, ev := range evs {
		corrections += len(ev.Corrections)
	}
	require.Equal(t, 5, corrections)
}

func TestRunTicksOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := &recPublisher{}
	s := New(staticRooms{room(t, "ABC123", clock.Now())}, pub, Options{Clock: clock, Interval: 500 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return pub.total() == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return pub.total() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
