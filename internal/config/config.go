package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	SendBuffer int           `mapstructure:"send_buffer"`
	LogLevel   string        `mapstructure:"log_level"`
	AdminToken string        `mapstructure:"admin_token"`

	Sync   SyncConfig   `mapstructure:"sync"`
	Rooms  RoomsConfig  `mapstructure:"rooms"`
	Limits LimitsConfig `mapstructure:"limits"`
}

type SyncConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	Tolerance          float64       `mapstructure:"tolerance"`
	HardThreshold      float64       `mapstructure:"hard_threshold"`
	CorrectionCooldown time.Duration `mapstructure:"correction_cooldown"`
	ReportStaleAfter   time.Duration `mapstructure:"report_stale_after"`
	Workers            int           `mapstructure:"workers"`
}

type RoomsConfig struct {
	CodeLength    int                  `mapstructure:"code_length"`
	CodeAttempts  int                  `mapstructure:"code_attempts"`
	HostDeparture domain.HostDeparture `mapstructure:"host_departure"`
	ActionPolicy  domain.ActionPolicy  `mapstructure:"action_policy"`
}

type LimitsConfig struct {
	Actions        int           `mapstructure:"actions"`
	ActionInterval time.Duration `mapstructure:"action_interval"`
}

// Params converts the sync section to the correction loop tunables.
func (s SyncConfig) Params() core.SyncParams {
	return core.SyncParams{
		Tolerance:     s.Tolerance,
		HardThreshold: s.HardThreshold,
		Cooldown:      s.CorrectionCooldown,
		StaleAfter:    s.ReportStaleAfter,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_token", "")

	v.SetDefault("sync.tick_interval", "500ms")
	v.SetDefault("sync.tolerance", 0.25)
	v.SetDefault("sync.hard_threshold", 2.0)
	v.SetDefault("sync.correction_cooldown", "800ms")
	v.SetDefault("sync.report_stale_after", "4s")
	v.SetDefault("sync.workers", 8)

	v.SetDefault("rooms.code_length", 6)
	v.SetDefault("rooms.code_attempts", 8)
	v.SetDefault("rooms.host_departure", string(domain.HostPromote))
	v.SetDefault("rooms.action_policy", string(domain.AnyMember))

	v.SetDefault("limits.actions", 20)
	v.SetDefault("limits.action_interval", "1s")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("WATCHSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("host_departure", string(cfg.Rooms.HostDeparture)).
		Str("action_policy", string(cfg.Rooms.ActionPolicy)).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Rooms.HostDeparture {
	case domain.HostPromote, domain.HostClose:
	default:
		return fmt.Errorf("rooms.host_departure %q", c.Rooms.HostDeparture)
	}
	switch c.Rooms.ActionPolicy {
	case domain.AnyMember, domain.HostOnly:
	default:
		return fmt.Errorf("rooms.action_policy %q", c.Rooms.ActionPolicy)
	}
	if c.Sync.TickInterval <= 0 {
		return errors.New("sync.tick_interval must be positive")
	}
	if c.Sync.Tolerance <= 0 || c.Sync.HardThreshold < c.Sync.Tolerance {
		return errors.New("sync.tolerance must be positive and not above sync.hard_threshold")
	}
	if c.Rooms.CodeLength < 4 {
		return errors.New("rooms.code_length must be at least 4")
	}
	return nil
}
