package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/app/orch"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

func (ctl *SignalWSController) handleCreateRoom(
	id domain.MemberID,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	info, err := ctl.Orch.CreateRoom(id)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("member", string(id)).Msg("create room")
		return
	}
	ctl.sendJSON(conn, protocol.RoomCreated{
		Type:  protocol.TypeRoomCreated,
		ReqID: env.ReqID,
		Code:  info.Code,
	})
	ctl.sendJSON(conn, protocol.NewRoomInfo(info))
}

func (ctl *SignalWSController) handleJoin(
	id domain.MemberID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "", protocol.ErrCodeBadPayload)
		return
	}
	code := domain.NormalizeRoomCode(string(p.Code))

	res, err := ctl.Orch.JoinRoom(id, code)
	if err != nil {
		if orch.IsNotFound(err) {
			log.Info().Str("module", "signal").Str("member", string(id)).Str("code", string(code)).Msg("join: room not found")
			ctl.sendError(conn, p.ReqID, protocol.ErrCodeRoomNotFound)
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("member", string(id)).Msg("join")
		return
	}

	state := protocol.NewPlaybackState(res.State)
	state.Type = protocol.TypePlaybackSnapshot
	ctl.sendJSON(conn, protocol.RoomJoined{
		Type:        protocol.TypeRoomJoined,
		ReqID:       p.ReqID,
		Code:        res.Info.Code,
		HostID:      res.Info.HostID,
		MemberCount: res.Info.MemberCount,
		You:         id,
		State:       state,
	})
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	id domain.MemberID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("member", string(id)).Msg("leave")
	ctl.Orch.Leave(id)
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypeLeft})
}
