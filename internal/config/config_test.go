package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/WatchSync/internal/domain"
)

// chdirTemp runs the test from an empty directory so no config file is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 500*time.Millisecond, cfg.Sync.TickInterval)
	require.Equal(t, 0.25, cfg.Sync.Tolerance)
	require.Equal(t, 2.0, cfg.Sync.HardThreshold)
	require.Equal(t, 800*time.Millisecond, cfg.Sync.CorrectionCooldown)
	require.Equal(t, 4*time.Second, cfg.Sync.ReportStaleAfter)
	require.Equal(t, domain.HostPromote, cfg.Rooms.HostDeparture)
	require.Equal(t, domain.AnyMember, cfg.Rooms.ActionPolicy)
	require.Equal(t, 6, cfg.Rooms.CodeLength)

	p := cfg.Sync.Params()
	require.Equal(t, cfg.Sync.Tolerance, p.Tolerance)
	require.Equal(t, cfg.Sync.CorrectionCooldown, p.Cooldown)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("port: 9000\nrooms:\n  host_departure: close\nsync:\n  tolerance: 0.5\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("WATCHSYNC_ROOMS_ACTION_POLICY", "host")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, domain.HostClose, cfg.Rooms.HostDeparture)
	require.Equal(t, domain.HostOnly, cfg.Rooms.ActionPolicy)
	require.Equal(t, 0.5, cfg.Sync.Tolerance)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load()
	require.NoError(t, err)

	bad := *cfg
	bad.Rooms.HostDeparture = "vanish"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Sync.HardThreshold = 0.1
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Sync.TickInterval = 0
	require.Error(t, bad.Validate())
}
