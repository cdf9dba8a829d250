// Package protocol holds the JSON messages exchanged over the signal socket.
// Every message is a flat object carrying a "type" discriminator; requests
// that expect a reply may carry a "reqId" which is echoed back.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/WatchSync/internal/domain"
)

const (
	TypeCreateRoom       = "create-room"
	TypeRoomCreated      = "room-created"
	TypeJoinRoom         = "join-room"
	TypeRoomJoined       = "room-joined"
	TypeLeaveRoom        = "leave-room"
	TypeLeft             = "left"
	TypeRoomInfo         = "room-info"
	TypeRoomClosed       = "room-closed"
	TypeMemberLeft       = "membership-left"
	TypePlaybackAction   = "playback-action"
	TypePlaybackState    = "playback-state"
	TypePlaybackRequest  = "playback-request"
	TypePlaybackSnapshot = "playback-snapshot"
	TypePlaybackReport   = "playback-report"
	TypeSyncIndicator    = "sync-indicator"
	TypePlaybackCorrect  = "playback-correct"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeRename           = "rename"
	TypeWhoAmI           = "whoami"
	TypeError            = "error"
)

// Stable error codes sent in Error.Error.
const (
	ErrCodeRoomNotFound = "room_not_found"
	ErrCodeBadPayload   = "bad_payload"
	ErrCodeInvalidName  = "invalid_name"
)

// Envelope is decoded first to route a message.
type Envelope struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
}

type CreateRoom struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
}

type RoomCreated struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	Code  domain.RoomCode `json:"code"`
}

type JoinRoom struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	Code  domain.RoomCode `json:"code"`
}

type RoomJoined struct {
	Type        string          `json:"type"`
	ReqID       string          `json:"reqId,omitempty"`
	Code        domain.RoomCode `json:"code"`
	HostID      domain.MemberID `json:"hostId"`
	MemberCount int             `json:"memberCount"`
	You         domain.MemberID `json:"you"`
	State       PlaybackState   `json:"state"`
}

type RoomInfo struct {
	Type        string          `json:"type"`
	Code        domain.RoomCode `json:"code"`
	HostID      domain.MemberID `json:"hostId"`
	MemberCount int             `json:"memberCount"`
}

type RoomClosed struct {
	Type string          `json:"type"`
	Code domain.RoomCode `json:"code"`
}

type MemberLeft struct {
	Type     string          `json:"type"`
	Code     domain.RoomCode `json:"code"`
	MemberID domain.MemberID `json:"memberId"`
}

type PlaybackAction struct {
	Type         string          `json:"type"`
	Code         domain.RoomCode `json:"code"`
	Action       string          `json:"action"`
	TimeSeconds  *float64        `json:"timeSeconds,omitempty"`
	PlaybackRate float64         `json:"playbackRate,omitempty"`
}

// PlaybackState is both the room broadcast and the snapshot reply body.
type PlaybackState struct {
	Type            string            `json:"type"`
	ReqID           string            `json:"reqId,omitempty"`
	IsPlaying       bool              `json:"isPlaying"`
	PositionSeconds float64           `json:"positionSeconds"`
	PlaybackRate    float64           `json:"playbackRate"`
	Seq             uint64            `json:"seq"`
	ServerTimeMs    int64             `json:"serverTimeMs"`
	By              domain.MemberID   `json:"by,omitempty"`
	Action          domain.ActionType `json:"action,omitempty"`
}

type PlaybackRequest struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	Code  domain.RoomCode `json:"code"`
}

type PlaybackReport struct {
	Type         string          `json:"type"`
	Code         domain.RoomCode `json:"code"`
	TimeSeconds  float64         `json:"timeSeconds"`
	IsPlaying    bool            `json:"isPlaying"`
	PlaybackRate float64         `json:"playbackRate"`
}

type SyncIndicator struct {
	Type                 string  `json:"type"`
	IsSynced             bool    `json:"isSynced"`
	WorstAbsDriftSeconds float64 `json:"worstAbsDriftSeconds"`
	ToleranceSeconds     float64 `json:"toleranceSeconds"`
	ServerTimeMs         int64   `json:"serverTimeMs"`
}

type PlaybackCorrect struct {
	Type              string                `json:"type"`
	TargetTimeSeconds float64               `json:"targetTimeSeconds"`
	IsPlaying         bool                  `json:"isPlaying"`
	PlaybackRate      float64               `json:"playbackRate"`
	Seq               uint64                `json:"seq"`
	ServerTimeMs      int64                 `json:"serverTimeMs"`
	Mode              domain.CorrectionMode `json:"mode"`
	ToleranceSeconds  float64               `json:"toleranceSeconds"`
}

type Ping struct {
	Type         string `json:"type"`
	ClientTimeMs int64  `json:"clientTimeMs,omitempty"`
}

type Pong struct {
	Type         string `json:"type"`
	ClientTimeMs int64  `json:"clientTimeMs,omitempty"`
	ServerTimeMs int64  `json:"serverTimeMs"`
}

type Rename struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type WhoAmI struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	ID    domain.MemberID `json:"id"`
	Name  string          `json:"name"`
	Room  domain.RoomCode `json:"room,omitempty"`
}

type Error struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

func Millis(t time.Time) int64 { return t.UnixMilli() }

func FromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func NewPlaybackState(s domain.PlaybackState) PlaybackState {
	return PlaybackState{
		Type:            TypePlaybackState,
		IsPlaying:       s.IsPlaying,
		PositionSeconds: s.PositionSeconds,
		PlaybackRate:    s.PlaybackRate,
		Seq:             s.Seq,
		ServerTimeMs:    Millis(s.UpdatedAt),
		By:              s.By,
		Action:          s.Action,
	}
}

func NewRoomInfo(info domain.RoomInfo) RoomInfo {
	return RoomInfo{Type: TypeRoomInfo, Code: info.Code, HostID: info.HostID, MemberCount: info.MemberCount}
}

func NewSyncIndicator(in domain.SyncIndicator) SyncIndicator {
	return SyncIndicator{
		Type:                 TypeSyncIndicator,
		IsSynced:             in.IsSynced,
		WorstAbsDriftSeconds: in.WorstAbsDriftSeconds,
		ToleranceSeconds:     in.ToleranceSeconds,
		ServerTimeMs:         Millis(in.ServerTime),
	}
}

func NewPlaybackCorrect(c domain.Correction) PlaybackCorrect {
	return PlaybackCorrect{
		Type:              TypePlaybackCorrect,
		TargetTimeSeconds: c.TargetTimeSeconds,
		IsPlaying:         c.IsPlaying,
		PlaybackRate:      c.PlaybackRate,
		Seq:               c.Seq,
		ServerTimeMs:      Millis(c.ServerTime),
		Mode:              c.Mode,
		ToleranceSeconds:  c.ToleranceSeconds,
	}
}

// ToAction validates the wire action.
func (p PlaybackAction) ToAction() (domain.Action, error) {
	t, err := domain.ParseActionType(p.Action)
	if err != nil {
		return domain.Action{}, fmt.Errorf("playback action: %w", err)
	}
	return domain.Action{Type: t, TimeSeconds: p.TimeSeconds, Rate: p.PlaybackRate}, nil
}

func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}
