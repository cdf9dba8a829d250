package reconcile

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the client-side heuristics. All of them are tunable.
type Config struct {
	// Seek on a broadcast only past these drifts; looser while playing.
	PlayingSeekThreshold float64
	PausedSeekThreshold  float64
	// Media events inside this window after a remote apply are ignored.
	SuppressWindow time.Duration
	// Soft corrections partially seek past SoftSeekTrigger, by at most SoftSeekCap.
	SoftSeekTrigger float64
	SoftSeekCap     float64
	// Rate nudge: clamp(drift*NudgeFactor, ±NudgeCap) for NudgeWindow.
	NudgeFactor float64
	NudgeCap    float64
	NudgeWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		PlayingSeekThreshold: 0.5,
		PausedSeekThreshold:  0.12,
		SuppressWindow:       350 * time.Millisecond,
		SoftSeekTrigger:      0.75,
		SoftSeekCap:          0.5,
		NudgeFactor:          0.25,
		NudgeCap:             0.35,
		NudgeWindow:          1200 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	switch {
	case c.PlayingSeekThreshold <= 0 || c.PausedSeekThreshold <= 0:
		return errors.New("reconcile: seek thresholds must be positive")
	case c.SuppressWindow < 0:
		return errors.New("reconcile: suppress window must not be negative")
	case c.SoftSeekTrigger <= 0 || c.SoftSeekCap <= 0:
		return errors.New("reconcile: soft seek trigger and cap must be positive")
	case c.NudgeFactor < 0 || c.NudgeCap < 0:
		return errors.New("reconcile: nudge factor and cap must not be negative")
	case c.NudgeCap >= 1:
		return fmt.Errorf("reconcile: nudge cap %.2f would stop or reverse playback", c.NudgeCap)
	case c.NudgeWindow <= 0:
		return errors.New("reconcile: nudge window must be positive")
	}
	return nil
}
