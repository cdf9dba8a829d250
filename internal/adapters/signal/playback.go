package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

// handlePlaybackAction never answers: invalid, throttled and unauthorized
// actions are all dropped the same way.
func (ctl *SignalWSController) handlePlaybackAction(
	id domain.MemberID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.PlaybackAction
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad action payload")
		ctl.sendError(conn, "", protocol.ErrCodeBadPayload)
		return
	}
	a, err := p.ToAction()
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("member", string(id)).Msg("action rejected")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Debug().Str("module", "signal").Str("member", string(id)).Msg("action throttled")
		return
	}
	ctl.Orch.Act(id, domain.NormalizeRoomCode(string(p.Code)), a)
}

func (ctl *SignalWSController) handlePlaybackRequest(
	id domain.MemberID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.PlaybackRequest
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "", protocol.ErrCodeBadPayload)
		return
	}
	state, err := ctl.Orch.Snapshot(id, domain.NormalizeRoomCode(string(p.Code)))
	if err != nil {
		ctl.sendError(conn, p.ReqID, protocol.ErrCodeRoomNotFound)
		return
	}
	msg := protocol.NewPlaybackState(state)
	msg.Type = protocol.TypePlaybackSnapshot
	msg.ReqID = p.ReqID
	ctl.sendJSON(conn, msg)
}

func (ctl *SignalWSController) handlePlaybackReport(
	id domain.MemberID,
	_ *WsSignalConn,
	data []byte,
) {
	var p protocol.PlaybackReport
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad report payload")
		return
	}
	ctl.Orch.Report(id, domain.NormalizeRoomCode(string(p.Code)), p.TimeSeconds, p.IsPlaying, p.PlaybackRate)
}
