package core

import (
	"math"
	"time"

	"github.com/dkeye/WatchSync/internal/domain"
)

const rateEpsilon = 1e-3

// SyncParams are the tunables of the correction loop.
type SyncParams struct {
	Tolerance     float64
	HardThreshold float64
	Cooldown      time.Duration
	StaleAfter    time.Duration
}

func DefaultSyncParams() SyncParams {
	return SyncParams{
		Tolerance:     0.25,
		HardThreshold: 2.0,
		Cooldown:      800 * time.Millisecond,
		StaleAfter:    4 * time.Second,
	}
}

type MemberDrift struct {
	Member domain.MemberID
	Drift  float64
}

// Evaluation is the outcome of one tick for one room.
type Evaluation struct {
	Code          domain.RoomCode
	Authoritative domain.PlaybackState
	Indicator     domain.SyncIndicator
	Drifts        []MemberDrift
	Corrections   []domain.Correction
	AllFresh      bool
}

// ReportedPosition projects a report forward by its age, the way the client would.
func ReportedPosition(r *domain.ClientReport, now time.Time) float64 {
	pos := r.TimeSeconds
	if r.IsPlaying {
		pos += now.Sub(r.ReceivedAt).Seconds() * r.PlaybackRate
	}
	return math.Max(0, pos)
}

func correctionMode(drift float64, p SyncParams) domain.CorrectionMode {
	if math.Abs(drift) >= p.HardThreshold {
		return domain.CorrectionHard
	}
	return domain.CorrectionSoft
}

func mismatched(r *domain.ClientReport, auth domain.PlaybackState) bool {
	return r.IsPlaying != auth.IsPlaying || math.Abs(r.PlaybackRate-auth.PlaybackRate) > rateEpsilon
}

// evaluate computes drift for members in order against auth. It stamps
// LastCorrectedAt on the reports it emits corrections for.
func evaluate(
	auth domain.PlaybackState,
	members []domain.MemberID,
	reports map[domain.MemberID]*domain.ClientReport,
	now time.Time,
	p SyncParams,
) Evaluation {
	ev := Evaluation{
		Authoritative: auth,
		AllFresh:      len(members) > 0,
	}

	worst := 0.0
	inTolerance := true
	for _, id := range members {
		r, ok := reports[id]
		if !ok || now.Sub(r.ReceivedAt) > p.StaleAfter {
			ev.AllFresh = false
			continue
		}
		d := ReportedPosition(r, now) - auth.PositionSeconds
		ev.Drifts = append(ev.Drifts, MemberDrift{Member: id, Drift: d})
		if a := math.Abs(d); a > worst {
			worst = a
		}
		if math.Abs(d) > p.Tolerance {
			inTolerance = false
		}
	}

	ev.Indicator = domain.SyncIndicator{
		IsSynced:             ev.AllFresh && inTolerance,
		WorstAbsDriftSeconds: worst,
		ToleranceSeconds:     p.Tolerance,
		ServerTime:           now,
	}
	if !ev.AllFresh {
		return ev
	}

	for _, md := range ev.Drifts {
		r := reports[md.Member]
		if math.Abs(md.Drift) <= p.Tolerance && !mismatched(r, auth) {
			continue
		}
		if !r.LastCorrectedAt.IsZero() && now.Sub(r.LastCorrectedAt) < p.Cooldown {
			continue
		}
		r.LastCorrectedAt = now
		ev.Corrections = append(ev.Corrections, domain.Correction{
			Member:            md.Member,
			TargetTimeSeconds: auth.PositionSeconds,
			IsPlaying:         auth.IsPlaying,
			PlaybackRate:      auth.PlaybackRate,
			Seq:               auth.Seq,
			ServerTime:        now,
			Mode:              correctionMode(md.Drift, p),
			DriftSeconds:      md.Drift,
			ToleranceSeconds:  p.Tolerance,
		})
	}
	return ev
}
