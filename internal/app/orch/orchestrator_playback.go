package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

// Act validates and applies a playback action, then broadcasts the new
// authoritative state to the whole room, actor included. Unauthorized
// actions are dropped without telling the caller.
func (o *Orchestrator) Act(id domain.MemberID, code domain.RoomCode, a domain.Action) bool {
	room, ok := o.Rooms.Get(code)
	if !ok {
		o.Metrics.RecordAction(a.Type, false)
		log.Debug().Str("module", "orch").Str("member", string(id)).Str("code", string(code)).Msg("action for unknown room dropped")
		return false
	}
	state, err := room.Act(id, o.Clock.Now(), a, o.Rooms.Policy().Actions)
	if err != nil {
		o.Metrics.RecordAction(a.Type, false)
		log.Debug().Err(err).Str("module", "orch").Str("member", string(id)).Str("code", string(code)).Msg("action dropped")
		return false
	}
	o.Metrics.RecordAction(a.Type, true)
	log.Info().Str("module", "orch").
		Str("code", string(code)).
		Str("member", string(id)).
		Str("action", string(a.Type)).
		Uint64("seq", state.Seq).
		Float64("position", state.PositionSeconds).
		Bool("playing", state.IsPlaying).
		Msg("playback action applied")
	o.publish(room, "", protocol.NewPlaybackState(state))
	return true
}

// Snapshot answers an on-demand pull. Non-members get the same answer as
// for a missing room.
func (o *Orchestrator) Snapshot(id domain.MemberID, code domain.RoomCode) (domain.PlaybackState, error) {
	room, ok := o.Rooms.Get(code)
	if !ok || !room.IsMember(id) {
		return domain.PlaybackState{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(o.Clock.Now()), nil
}

// Report stores an advisory self-report.
func (o *Orchestrator) Report(id domain.MemberID, code domain.RoomCode, timeSeconds float64, isPlaying bool, rate float64) {
	room, ok := o.Rooms.Get(code)
	if !ok {
		return
	}
	if !room.Report(id, timeSeconds, isPlaying, rate, o.Clock.Now()) {
		log.Debug().Str("module", "orch").Str("member", string(id)).Str("code", string(code)).Msg("report from non-member ignored")
	}
}

// PublishEvaluation sends one tick's results: the room-wide indicator and
// the targeted corrections.
func (o *Orchestrator) PublishEvaluation(room *core.Room, ev core.Evaluation) {
	o.publish(room, "", protocol.NewSyncIndicator(ev.Indicator))
	for _, c := range ev.Corrections {
		o.Metrics.RecordCorrection(c.Mode)
		log.Debug().Str("module", "orch").
			Str("code", string(ev.Code)).
			Str("member", string(c.Member)).
			Str("mode", string(c.Mode)).
			Float64("drift", c.DriftSeconds).
			Msg("correction sent")
		o.sendTo(room, c.Member, protocol.NewPlaybackCorrect(c))
	}
}

// IsNotFound reports whether err should be answered with room_not_found.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrRoomNotFound) }
