package signal

import (
	"encoding/json"

	"github.com/dkeye/WatchSync/internal/protocol"
)

// handlePing echoes the client clock next to ours so members can estimate
// their offset from the server.
func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Ping
	_ = json.Unmarshal(data, &p)
	ctl.sendJSON(conn, protocol.Pong{
		Type:         protocol.TypePong,
		ClientTimeMs: p.ClientTimeMs,
		ServerTimeMs: protocol.Millis(ctl.Orch.Clock.Now()),
	})
}
