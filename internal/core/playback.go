package core

import (
	"math"
	"time"

	"github.com/dkeye/WatchSync/internal/domain"
)

// Project returns the state as observed at now. It never mutates s.
func Project(s domain.PlaybackState, now time.Time) domain.PlaybackState {
	if s.IsPlaying {
		elapsed := now.Sub(s.UpdatedAt).Seconds() * s.PlaybackRate
		s.PositionSeconds = math.Max(0, s.PositionSeconds+elapsed)
	}
	s.UpdatedAt = now
	return s
}

// Apply collapses elapsed time into the stored position and applies a.
// Seq is bumped on every call, including value no-ops.
func Apply(s domain.PlaybackState, now time.Time, by domain.MemberID, a domain.Action) domain.PlaybackState {
	next := Project(s, now)

	switch a.Type {
	case domain.ActionPlay, domain.ActionPause, domain.ActionSeek:
		if a.TimeSeconds != nil {
			next.PositionSeconds = domain.ClampPosition(*a.TimeSeconds)
		}
		switch a.Type {
		case domain.ActionPlay:
			next.IsPlaying = true
		case domain.ActionPause:
			next.IsPlaying = false
		}
	case domain.ActionRate:
		next.PlaybackRate = domain.ClampRate(a.Rate)
	}

	next.Seq = s.Seq + 1
	next.By = by
	next.Action = a.Type
	return next
}
