package core

import (
	"github.com/dkeye/WatchSync/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID   domain.MemberID `json:"id"`
	Name string          `json:"name"`
	Host bool            `json:"host"`
}

// LeaveResult tells the caller which notifications a departure needs.
type LeaveResult struct {
	Removed     bool
	Empty       bool
	Closed      bool
	HostChanged bool
	Info        domain.RoomInfo
	// Released holds the remaining members of a room closed by its host.
	Released []MemberSession
}
