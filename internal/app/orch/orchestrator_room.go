package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

// JoinResult is what a joining member needs to start reconciling.
type JoinResult struct {
	State domain.PlaybackState
	Info  domain.RoomInfo
}

// CreateRoom opens a room hosted by id, leaving any previous room first.
func (o *Orchestrator) CreateRoom(id domain.MemberID) (domain.RoomInfo, error) {
	sess, ok := o.Sessions.Get(id)
	if !ok {
		return domain.RoomInfo{}, domain.ErrUnauthorized
	}
	o.Leave(id)
	room := o.Rooms.Create(sess)
	return room.Info(), nil
}

// JoinRoom adds id to code. Joining the current room again only returns a
// fresh snapshot; an unknown code leaves the current membership untouched.
func (o *Orchestrator) JoinRoom(id domain.MemberID, code domain.RoomCode) (JoinResult, error) {
	sess, ok := o.Sessions.Get(id)
	if !ok {
		return JoinResult{}, domain.ErrUnauthorized
	}
	if _, ok := o.Rooms.Get(code); !ok {
		return JoinResult{}, domain.ErrRoomNotFound
	}
	if cur, ok := o.Rooms.RoomOf(id); ok {
		if cur.Code() == code {
			return JoinResult{State: cur.Snapshot(o.Clock.Now()), Info: cur.Info()}, nil
		}
		o.Leave(id)
		log.Info().Str("module", "orch").Str("member", string(id)).Str("from_room", string(cur.Code())).Msg("left previous room")
	}

	room, state, info, err := o.Rooms.Join(code, sess)
	if err != nil {
		return JoinResult{}, err
	}
	log.Info().Str("module", "orch").Str("member", string(id)).Str("code", string(code)).Int("members", info.MemberCount).Msg("joined room")
	o.publish(room, id, protocol.NewRoomInfo(info))
	return JoinResult{State: state, Info: info}, nil
}

// Leave removes id from its room and notifies whoever remains.
func (o *Orchestrator) Leave(id domain.MemberID) {
	dep, ok := o.Rooms.RemoveMember(id)
	if !ok {
		return
	}
	res := dep.Result
	code := dep.Room.Code()
	switch {
	case res.Empty:
	case res.Closed:
		for _, m := range res.Released {
			o.sendDirect(m, protocol.RoomClosed{Type: protocol.TypeRoomClosed, Code: code})
		}
	default:
		o.publish(dep.Room, "", protocol.MemberLeft{Type: protocol.TypeMemberLeft, Code: code, MemberID: id})
		o.publish(dep.Room, "", protocol.NewRoomInfo(res.Info))
	}
}

// Members returns a read-only view of room code.
func (o *Orchestrator) Members(code domain.RoomCode) (domain.RoomInfo, []core.MemberDTO, bool) {
	room, ok := o.Rooms.Get(code)
	if !ok {
		return domain.RoomInfo{}, nil, false
	}
	return room.Info(), room.MembersSnapshot(), true
}

// EvictRoom closes code for everyone. Members stay connected and receive
// room-closed.
func (o *Orchestrator) EvictRoom(code domain.RoomCode) bool {
	released, ok := o.Rooms.Close(code)
	if !ok {
		return false
	}
	for _, m := range released {
		o.sendDirect(m, protocol.RoomClosed{Type: protocol.TypeRoomClosed, Code: code})
	}
	return true
}
