package domain

import "strings"

type RoomCode string

// NormalizeRoomCode turns a code as typed by a user into its canonical form.
func NormalizeRoomCode(s string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(s)))
}

// RoomInfo is the membership view broadcast on every membership change.
type RoomInfo struct {
	Code        RoomCode `json:"code"`
	HostID      MemberID `json:"hostId"`
	MemberCount int      `json:"memberCount"`
}

// HostDeparture decides what happens to a room when its host leaves.
type HostDeparture string

const (
	HostPromote HostDeparture = "promote"
	HostClose   HostDeparture = "close"
)

// ActionPolicy decides who may mutate playback.
type ActionPolicy string

const (
	AnyMember ActionPolicy = "any"
	HostOnly  ActionPolicy = "host"
)
