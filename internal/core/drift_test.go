package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/WatchSync/internal/domain"
)

// playingRoom returns a room playing from 100s at t0 with the given members.
func playingRoom(t *testing.T, ids ...string) *Room {
	t.Helper()
	r := newRoom(t, ids...)
	_, err := r.Act(domain.MemberID(ids[0]), t0, domain.Action{Type: domain.ActionPlay, TimeSeconds: ptr(100)}, domain.AnyMember)
	require.NoError(t, err)
	return r
}

func TestEvaluateSynced(t *testing.T) {
	r := playingRoom(t, "a", "b")
	now := t0.Add(10 * time.Second)
	require.True(t, r.Report("a", 110.1, true, 1, now))
	require.True(t, r.Report("b", 109.9, true, 1, now))

	ev := r.Evaluate(now, DefaultSyncParams())
	require.True(t, ev.AllFresh)
	require.True(t, ev.Indicator.IsSynced)
	require.InDelta(t, 0.1, ev.Indicator.WorstAbsDriftSeconds, 1e-9)
	require.Empty(t, ev.Corrections)
	require.Equal(t, domain.RoomCode("ABC123"), ev.Code)
}

func TestEvaluateModeSelection(t *testing.T) {
	r := playingRoom(t, "a", "b", "c")
	now := t0.Add(10 * time.Second)
	require.True(t, r.Report("a", 110, true, 1, now))
	require.True(t, r.Report("b", 110.8, true, 1, now))
	require.True(t, r.Report("c", 107.5, true, 1, now))

	ev := r.Evaluate(now, DefaultSyncParams())
	require.False(t, ev.Indicator.IsSynced)
	require.InDelta(t, 2.5, ev.Indicator.WorstAbsDriftSeconds, 1e-9)
	require.Len(t, ev.Corrections, 2)

	byMember := map[domain.MemberID]domain.Correction{}
	for _, c := range ev.Corrections {
		byMember[c.Member] = c
	}
	require.Equal(t, domain.CorrectionSoft, byMember["b"].Mode)
	require.Equal(t, domain.CorrectionHard, byMember["c"].Mode)
	require.InDelta(t, 110.0, byMember["c"].TargetTimeSeconds, 1e-9)
	require.EqualValues(t, 1, byMember["c"].Seq)
	require.True(t, byMember["c"].IsPlaying)
}

func TestEvaluateProjectsReportAge(t *testing.T) {
	r := playingRoom(t, "a")
	require.True(t, r.Report("a", 101, true, 1, t0.Add(time.Second)))

	ev := r.Evaluate(t0.Add(3*time.Second), DefaultSyncParams())
	require.Len(t, ev.Drifts, 1)
	require.InDelta(t, 0.0, ev.Drifts[0].Drift, 1e-9)
}

func TestEvaluateCooldown(t *testing.T) {
	r := playingRoom(t, "a")
	p := DefaultSyncParams()
	report := func(at time.Time) {
		// always 1s behind
		require.True(t, r.Report("a", 100+at.Sub(t0).Seconds()-1, true, 1, at))
	}

	now := t0.Add(time.Second)
	report(now)
	require.Len(t, r.Evaluate(now, p).Corrections, 1)

	now = now.Add(500 * time.Millisecond)
	report(now)
	require.Empty(t, r.Evaluate(now, p).Corrections, "inside cooldown")

	now = now.Add(300 * time.Millisecond)
	report(now)
	require.Len(t, r.Evaluate(now, p).Corrections, 1)
}

func TestEvaluateStaleReportSuppressesCorrections(t *testing.T) {
	r := playingRoom(t, "a", "b")
	require.True(t, r.Report("a", 100, true, 1, t0))
	now := t0.Add(5 * time.Second)
	require.True(t, r.Report("b", 90, true, 1, now))

	ev := r.Evaluate(now, DefaultSyncParams())
	require.False(t, ev.AllFresh)
	require.False(t, ev.Indicator.IsSynced)
	require.Empty(t, ev.Corrections)
	require.Len(t, ev.Drifts, 1)
	require.InDelta(t, 15.0, ev.Indicator.WorstAbsDriftSeconds, 1e-9)
}

func TestEvaluateMissingReport(t *testing.T) {
	r := playingRoom(t, "a", "b")
	require.True(t, r.Report("a", 100, true, 1, t0))
	ev := r.Evaluate(t0, DefaultSyncParams())
	require.False(t, ev.AllFresh)
	require.False(t, ev.Indicator.IsSynced)
}

func TestEvaluateStateMismatch(t *testing.T) {
	r := playingRoom(t, "a", "b")
	now := t0.Add(2 * time.Second)
	require.True(t, r.Report("a", 102, true, 1, now))
	// paused at the right position
	require.True(t, r.Report("b", 102, false, 1, now))

	ev := r.Evaluate(now, DefaultSyncParams())
	require.True(t, ev.Indicator.IsSynced, "indicator is about drift only")
	require.Len(t, ev.Corrections, 1)
	require.Equal(t, domain.MemberID("b"), ev.Corrections[0].Member)
	require.Equal(t, domain.CorrectionSoft, ev.Corrections[0].Mode)
}

func TestReportedPositionNeverNegative(t *testing.T) {
	rep := &domain.ClientReport{TimeSeconds: 0, IsPlaying: false, ReceivedAt: t0}
	require.Equal(t, 0.0, ReportedPosition(rep, t0.Add(time.Second)))
}
