package domain

import (
	"fmt"
	"time"
)

const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
)

type ActionType string

const (
	ActionPlay  ActionType = "play"
	ActionPause ActionType = "pause"
	ActionSeek  ActionType = "seek"
	ActionRate  ActionType = "rate"
)

func ParseActionType(s string) (ActionType, error) {
	switch t := ActionType(s); t {
	case ActionPlay, ActionPause, ActionSeek, ActionRate:
		return t, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Action is a validated member request to mutate playback.
// TimeSeconds is an optional explicit target for seek/play/pause.
type Action struct {
	Type        ActionType
	TimeSeconds *float64
	Rate        float64
}

// PlaybackState is the authoritative state of a room.
// PositionSeconds is the position at UpdatedAt.
type PlaybackState struct {
	IsPlaying       bool
	PositionSeconds float64
	PlaybackRate    float64
	UpdatedAt       time.Time
	Seq             uint64
	By              MemberID
	Action          ActionType
}

func InitialPlayback(now time.Time) PlaybackState {
	return PlaybackState{PlaybackRate: DefaultRate, UpdatedAt: now}
}

// ClientReport is a member's self-reported position. Advisory only.
type ClientReport struct {
	TimeSeconds     float64
	IsPlaying       bool
	PlaybackRate    float64
	ReceivedAt      time.Time
	LastCorrectedAt time.Time
}

type CorrectionMode string

const (
	CorrectionSoft CorrectionMode = "soft"
	CorrectionHard CorrectionMode = "hard"
)

// Correction is a targeted nudge for one member.
type Correction struct {
	Member            MemberID
	TargetTimeSeconds float64
	IsPlaying         bool
	PlaybackRate      float64
	Seq               uint64
	ServerTime        time.Time
	Mode              CorrectionMode
	DriftSeconds      float64
	ToleranceSeconds  float64
}

// SyncIndicator is the room-wide "everyone is aligned" signal.
type SyncIndicator struct {
	IsSynced             bool
	WorstAbsDriftSeconds float64
	ToleranceSeconds     float64
	ServerTime           time.Time
}

func ClampRate(r float64) float64 {
	if r != r { // NaN
		return DefaultRate
	}
	if r < MinRate {
		return MinRate
	}
	if r > MaxRate {
		return MaxRate
	}
	return r
}

func ClampPosition(t float64) float64 {
	if t != t || t < 0 {
		return 0
	}
	return t
}
