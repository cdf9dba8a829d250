package orch

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/app"
	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/metrics"
	"github.com/dkeye/WatchSync/internal/protocol"
)

// Orchestrator is the only server component that produces protocol
// messages. Adapters call it; the scheduler publishes through it.
type Orchestrator struct {
	Sessions *app.Sessions
	Rooms    *app.RoomRegistry
	Policy   app.Policy
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
}

func New(sessions *app.Sessions, rooms *app.RoomRegistry, policy app.Policy, clock clockwork.Clock, m *metrics.Metrics) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Orchestrator{Sessions: sessions, Rooms: rooms, Policy: policy, Clock: clock, Metrics: m}
}

// Connect registers a freshly upgraded member connection.
func (o *Orchestrator) Connect(sess core.MemberSession, cancel func()) {
	o.Sessions.Bind(sess, cancel)
	o.Metrics.Connections.Inc()
}

// Disconnect is the transport-disconnect path: membership cleanup, host
// failover or room closure, then session removal.
func (o *Orchestrator) Disconnect(id domain.MemberID) {
	o.Leave(id)
	if sess, ok := o.Sessions.Get(id); ok {
		sess.Signal().Close()
		o.Sessions.Unbind(id)
		o.Metrics.Connections.Dec()
	}
}

func (o *Orchestrator) encode(v any) (core.Frame, bool) {
	b, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode failed")
		return nil, false
	}
	return core.Frame(b), true
}

// publish fans v out to the room and applies the backpressure policy to
// members whose buffers are full.
func (o *Orchestrator) publish(room *core.Room, from domain.MemberID, v any) {
	f, ok := o.encode(v)
	if !ok {
		return
	}
	o.handleDropped(room, room.Broadcast(from, f))
}

func (o *Orchestrator) sendTo(room *core.Room, id domain.MemberID, v any) {
	f, ok := o.encode(v)
	if !ok {
		return
	}
	o.handleDropped(room, room.SendTo(id, f))
}

// sendDirect bypasses rooms, e.g. for members released from a closed room.
func (o *Orchestrator) sendDirect(sess core.MemberSession, v any) {
	f, ok := o.encode(v)
	if !ok {
		return
	}
	if err := sess.Signal().TrySend(f); err != nil {
		o.Metrics.BackpressureDrop.Inc()
		log.Warn().Err(err).Str("module", "orch").Str("member", string(sess.Meta().ID)).Msg("direct send dropped")
	}
}

func (o *Orchestrator) handleDropped(room *core.Room, res core.PublishResult) {
	for _, slow := range res.Dropped {
		o.Metrics.BackpressureDrop.Inc()
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			id := slow.Meta().ID
			log.Warn().Str("module", "orch").Str("member", string(id)).Str("code", string(room.Code())).Msg("kicking slow member")
			o.Sessions.Cancel(id)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
