package client

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/WatchSync/internal/adapters/http"
	"github.com/dkeye/WatchSync/internal/adapters/signal"
	"github.com/dkeye/WatchSync/internal/app"
	"github.com/dkeye/WatchSync/internal/app/orch"
	"github.com/dkeye/WatchSync/internal/app/sched"
	"github.com/dkeye/WatchSync/internal/config"
	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/metrics"
)

type testServer struct {
	url     string
	metrics *metrics.Metrics
}

func startServer(t *testing.T) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewRealClock()
	m := metrics.New(prometheus.NewRegistry())
	rooms := app.NewRoomRegistry(app.RegistryOptions{Clock: clock, Policy: app.DefaultRoomPolicy(), Metrics: m})
	o := orch.New(app.NewSessions(), rooms, app.SimplePolicy{}, clock, m)
	s := sched.New(rooms, o, sched.Options{
		Clock:    clock,
		Interval: 100 * time.Millisecond,
		Params:   core.DefaultSyncParams(),
		Workers:  2,
		Metrics:  m,
	})
	go s.Run(ctx)

	cfg := &config.Config{Mode: "release", StaticPath: t.TempDir(), Secret: "test", PingPeriod: time.Minute}
	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Limiter: signal.NewRoomRateLimiter(clock, 50, time.Second)})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", metrics: m}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReportInterval = 50 * time.Millisecond
	opts.SnapshotInterval = 200 * time.Millisecond
	opts.PingInterval = 100 * time.Millisecond
	opts.Reconcile.SuppressWindow = 20 * time.Millisecond
	return opts
}

func connect(t *testing.T, ctx context.Context, url string) (*Member, *SimSink) {
	t.Helper()
	opts := testOptions()
	sink := NewSimSink(opts.Clock)
	m, err := Dial(ctx, url, sink, opts)
	require.NoError(t, err)
	sink.OnEvent(m.Reconciler().OnMediaEvent)
	go func() { _ = m.Run(ctx) }()
	return m, sink
}

func TestMembersConverge(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, hostSink := connect(t, ctx, srv.url)
	code, err := host.CreateRoom(ctx)
	require.NoError(t, err)
	hostSink.Load(600)
	host.Reconciler().SetReady()

	guest, guestSink := connect(t, ctx, srv.url)
	require.NoError(t, guest.JoinRoom(ctx, domain.RoomCode(strings.ToLower(string(code)))))
	require.Equal(t, code, guest.Code())
	guestSink.Load(600)
	guest.Reconciler().SetReady()

	require.Eventually(t, func() bool { return host.Reconciler().LastAppliedSeq() == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	hostSink.UserSeek(30)
	require.Eventually(t, func() bool { return host.Reconciler().LastAppliedSeq() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, hostSink.UserPlay())

	require.Eventually(t, func() bool {
		return !guestSink.Paused() && guest.Reconciler().LastAppliedSeq() >= 2
	}, 3*time.Second, 10*time.Millisecond)
	require.InDelta(t, hostSink.CurrentTime(), guestSink.CurrentTime(), 0.5)

	require.Eventually(t, func() bool { return guest.Indicator().IsSynced }, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, 2, guest.RoomInfo().MemberCount)
}

func TestDriftingMemberGetsCorrected(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, hostSink := connect(t, ctx, srv.url)
	code, err := host.CreateRoom(ctx)
	require.NoError(t, err)
	hostSink.Load(600)
	host.Reconciler().SetReady()

	guest, guestSink := connect(t, ctx, srv.url)
	require.NoError(t, guest.JoinRoom(ctx, code))
	guestSink.Load(600)
	guestSink.SetSkew(1.5)
	guest.Reconciler().SetReady()

	require.Eventually(t, func() bool { return host.Reconciler().LastAppliedSeq() == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, hostSink.UserPlay())

	corrections := func() float64 {
		return testutil.ToFloat64(srv.metrics.Corrections.WithLabelValues(string(domain.CorrectionSoft))) +
			testutil.ToFloat64(srv.metrics.Corrections.WithLabelValues(string(domain.CorrectionHard)))
	}
	require.Eventually(t, func() bool { return corrections() > 0 }, 5*time.Second, 20*time.Millisecond)
	require.Less(t, math.Abs(guestSink.CurrentTime()-hostSink.CurrentTime()), 2.5)
}

func TestJoinUnknownRoomFails(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, _ := connect(t, ctx, srv.url)
	require.ErrorIs(t, m.JoinRoom(ctx, "NOPE42"), domain.ErrRoomNotFound)

	who, err := m.WhoAmI(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, who.ID)
	require.Equal(t, domain.DefaultName, who.Name)
}

func TestSwitchingRoomsFollowsNewSeq(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, aSink := connect(t, ctx, srv.url)
	_, err := a.CreateRoom(ctx)
	require.NoError(t, err)
	aSink.Load(600)
	a.Reconciler().SetReady()
	require.Eventually(t, func() bool { return a.Reconciler().LastAppliedSeq() == 0 }, 2*time.Second, 10*time.Millisecond)

	for i := 1; i <= 4; i++ {
		time.Sleep(50 * time.Millisecond)
		aSink.UserSeek(float64(10 + i))
		want := int64(i)
		require.Eventually(t, func() bool { return a.Reconciler().LastAppliedSeq() == want }, 2*time.Second, 10*time.Millisecond)
	}

	b, bSink := connect(t, ctx, srv.url)
	codeB, err := b.CreateRoom(ctx)
	require.NoError(t, err)
	bSink.Load(600)
	b.Reconciler().SetReady()
	require.Eventually(t, func() bool { return b.Reconciler().LastAppliedSeq() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.JoinRoom(ctx, codeB))
	require.Equal(t, codeB, a.Code())
	require.EqualValues(t, 0, a.Reconciler().LastAppliedSeq())

	time.Sleep(50 * time.Millisecond)
	bSink.UserSeek(100)
	require.Eventually(t, func() bool { return a.Reconciler().LastAppliedSeq() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.InDelta(t, 100, aSink.CurrentTime(), 0.2)

	require.NoError(t, a.Leave())
	require.Empty(t, a.Code())
	require.EqualValues(t, -1, a.Reconciler().LastAppliedSeq())
}
