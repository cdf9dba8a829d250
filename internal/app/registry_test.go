package app

import (
	"errors"
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

func member(t *testing.T, id string) core.MemberSession {
	t.Helper()
	m, err := domain.NewMember(domain.MemberID(id), "")
	require.NoError(t, err)
	return core.NewMemberSession(m, nopConn{})
}

// seqCodes hands out a fixed sequence of codes.
type seqCodes struct {
	mu    sync.Mutex
	codes []domain.RoomCode
	err   error
}

func (g *seqCodes) Generate() (domain.RoomCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if len(g.codes) == 0 {
		return "DUPDUP", nil
	}
	c := g.codes[0]
	g.codes = g.codes[1:]
	return c, nil
}

func newRegistry(t *testing.T, policy RoomPolicy, codes CodeGenerator) (*RoomRegistry, *metrics.Metrics, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())
	r := NewRoomRegistry(RegistryOptions{
		Clock:        clock,
		Codes:        codes,
		CodeAttempts: 3,
		CodeLength:   6,
		Policy:       policy,
		Metrics:      m,
	})
	return r, m, clock
}

func TestCreateAndJoin(t *testing.T) {
	reg, m, _ := newRegistry(t, DefaultRoomPolicy(), &seqCodes{codes: []domain.RoomCode{"ABC123"}})
	room := reg.Create(member(t, "a"))
	require.Equal(t, domain.RoomCode("ABC123"), room.Code())
	require.Equal(t, 1.0, testutil.ToFloat64(m.RoomsActive))

	joined, state, info, err := reg.Join("ABC123", member(t, "b"))
	require.NoError(t, err)
	require.Same(t, room, joined)
	require.EqualValues(t, 0, state.Seq)
	require.False(t, state.IsPlaying)
	require.Equal(t, domain.DefaultRate, state.PlaybackRate)
	require.Equal(t, 2, info.MemberCount)

	got, ok := reg.RoomOf("b")
	require.True(t, ok)
	require.Same(t, room, got)
	require.Len(t, reg.List(), 1)
}

func TestJoinUnknownRoom(t *testing.T) {
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), nil)
	_, _, _, err := reg.Join("NOPE42", member(t, "a"))
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCodeCollisionFallsBack(t *testing.T) {
	codes := &seqCodes{codes: []domain.RoomCode{"DUPDUP"}}
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), codes)
	first := reg.Create(member(t, "a"))
	require.Equal(t, domain.RoomCode("DUPDUP"), first.Code())

	second := reg.Create(member(t, "b"))
	require.NotEqual(t, first.Code(), second.Code())
	require.Len(t, second.Code(), 6)
	require.Equal(t, 2, reg.Len())
}

func TestGeneratorErrorFallsBack(t *testing.T) {
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), &seqCodes{err: errors.New("entropy")})
	a := reg.Create(member(t, "a"))
	b := reg.Create(member(t, "b"))
	require.NotEmpty(t, a.Code())
	require.NotEqual(t, a.Code(), b.Code())
}

func TestHostFailover(t *testing.T) {
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), &seqCodes{codes: []domain.RoomCode{"ABC123"}})
	reg.Create(member(t, "a"))
	_, _, _, err := reg.Join("ABC123", member(t, "b"))
	require.NoError(t, err)
	_, _, _, err = reg.Join("ABC123", member(t, "c"))
	require.NoError(t, err)

	dep, ok := reg.RemoveMember("a")
	require.True(t, ok)
	require.True(t, dep.Result.HostChanged)
	require.Equal(t, domain.MemberID("b"), dep.Result.Info.HostID)
	require.Equal(t, 2, dep.Result.Info.MemberCount)

	_, ok = reg.RoomOf("a")
	require.False(t, ok)
	_, ok = reg.Get("ABC123")
	require.True(t, ok)
}

func TestLastMemberDestroysRoom(t *testing.T) {
	reg, m, _ := newRegistry(t, DefaultRoomPolicy(), &seqCodes{codes: []domain.RoomCode{"ABC123"}})
	reg.Create(member(t, "a"))

	dep, ok := reg.RemoveMember("a")
	require.True(t, ok)
	require.True(t, dep.Result.Empty)
	require.Zero(t, reg.Len())
	require.Equal(t, 0.0, testutil.ToFloat64(m.RoomsActive))

	_, _, _, err := reg.Join("ABC123", member(t, "b"))
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestHostClosePolicy(t *testing.T) {
	policy := RoomPolicy{HostDeparture: domain.HostClose, Actions: domain.AnyMember}
	reg, _, _ := newRegistry(t, policy, &seqCodes{codes: []domain.RoomCode{"ABC123"}})
	reg.Create(member(t, "a"))
	_, _, _, err := reg.Join("ABC123", member(t, "b"))
	require.NoError(t, err)

	dep, ok := reg.RemoveMember("a")
	require.True(t, ok)
	require.True(t, dep.Result.Closed)
	require.Len(t, dep.Result.Released, 1)
	require.Zero(t, reg.Len())
	_, ok = reg.RoomOf("b")
	require.False(t, ok)
}

func TestRemoveUnknownMember(t *testing.T) {
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), nil)
	_, ok := reg.RemoveMember("ghost")
	require.False(t, ok)
}

func TestCloseReleasesMembers(t *testing.T) {
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), &seqCodes{codes: []domain.RoomCode{"ABC123"}})
	reg.Create(member(t, "a"))
	_, _, _, err := reg.Join("ABC123", member(t, "b"))
	require.NoError(t, err)

	released, ok := reg.Close("ABC123")
	require.True(t, ok)
	require.Len(t, released, 2)
	_, ok = reg.RoomOf("a")
	require.False(t, ok)

	_, ok = reg.Close("ABC123")
	require.False(t, ok)
}

func TestConcurrentJoinAndLeave(t *testing.T) {
	reg, _, _ := newRegistry(t, DefaultRoomPolicy(), &seqCodes{codes: []domain.RoomCode{"ABC123"}})
	reg.Create(member(t, "host"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i%26)) + string(rune('0'+i/26))
			_, _, _, err := reg.Join("ABC123", member(t, id))
			require.NoError(t, err)
			reg.RemoveMember(domain.MemberID(id))
		}(i)
	}
	wg.Wait()

	room, ok := reg.Get("ABC123")
	require.True(t, ok)
	require.Equal(t, 1, room.Info().MemberCount)
}
