package app

import (
	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what to do with a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room *core.Room, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks slow members; their reconciler recovers by pulling a
// snapshot after reconnecting.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room *core.Room, member core.MemberSession) BackpressureAction {
	return KickMember
}

// RoomPolicy bundles the configurable room behaviors.
type RoomPolicy struct {
	HostDeparture domain.HostDeparture
	Actions       domain.ActionPolicy
}

func DefaultRoomPolicy() RoomPolicy {
	return RoomPolicy{HostDeparture: domain.HostPromote, Actions: domain.AnyMember}
}
