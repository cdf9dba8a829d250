package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

func (ctl *SignalWSController) handleRename(
	id domain.MemberID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Rename
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "", protocol.ErrCodeBadPayload)
		return
	}
	if err := ctl.Orch.Sessions.Rename(id, p.Name); err != nil {
		ctl.sendError(conn, "", protocol.ErrCodeInvalidName)
		return
	}
	ctl.handleWhoAmI(id, conn, "")
}

func (ctl *SignalWSController) handleWhoAmI(
	id domain.MemberID,
	conn *WsSignalConn,
	reqID string,
) {
	sess, ok := ctl.Orch.Sessions.Get(id)
	if !ok {
		return
	}
	resp := protocol.WhoAmI{
		Type:  protocol.TypeWhoAmI,
		ReqID: reqID,
		ID:    id,
		Name:  sess.Meta().Name(),
	}
	if room, ok := ctl.Orch.Rooms.RoomOf(id); ok {
		resp.Room = room.Code()
	}
	ctl.sendJSON(conn, resp)
}
