package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"playing threshold": func(c *Config) { c.PlayingSeekThreshold = 0 },
		"paused threshold":  func(c *Config) { c.PausedSeekThreshold = -1 },
		"suppress window":   func(c *Config) { c.SuppressWindow = -time.Millisecond },
		"soft seek cap":     func(c *Config) { c.SoftSeekCap = 0 },
		"nudge cap":         func(c *Config) { c.NudgeCap = 1 },
		"nudge window":      func(c *Config) { c.NudgeWindow = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
