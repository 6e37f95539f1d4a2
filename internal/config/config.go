package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment
// variables.
type Config struct {
	// Logging
	DebugLevel string `env:"HOLDEMD_DEBUG_LEVEL" envDefault:"info"`

	// Table defaults
	SmallBlind int64 `env:"HOLDEMD_SMALL_BLIND" envDefault:"5"`
	BigBlind   int64 `env:"HOLDEMD_BIG_BLIND" envDefault:"10"`
	MinPlayers int   `env:"HOLDEMD_MIN_PLAYERS" envDefault:"2"`
	MaxPlayers int   `env:"HOLDEMD_MAX_PLAYERS" envDefault:"9"`

	// Rake
	RakeBps       int64  `env:"HOLDEMD_RAKE_BPS" envDefault:"0"`
	RakeCap       int64  `env:"HOLDEMD_RAKE_CAP" envDefault:"0"`
	ClubShareBps  int64  `env:"HOLDEMD_CLUB_SHARE_BPS" envDefault:"7000"`
	AgentShareBps int64  `env:"HOLDEMD_AGENT_SHARE_BPS" envDefault:"2000"`
	ClubID        string `env:"HOLDEMD_CLUB_ID" envDefault:"club-default"`
	AgentID       string `env:"HOLDEMD_AGENT_ID"`

	// Timing
	ActionTimeout       time.Duration `env:"HOLDEMD_ACTION_TIMEOUT" envDefault:"30s"`
	ReconnectGrace      time.Duration `env:"HOLDEMD_RECONNECT_GRACE" envDefault:"2m"`
	SnapshotMinInterval time.Duration `env:"HOLDEMD_SNAPSHOT_MIN_INTERVAL" envDefault:"1s"`

	// Persistence
	SnapshotPath      string `env:"HOLDEMD_SNAPSHOT_PATH" envDefault:"./data/snapshots"`
	SnapshotRetention int    `env:"HOLDEMD_SNAPSHOT_RETENTION" envDefault:"64"`
	ArchivePath       string `env:"HOLDEMD_ARCHIVE_PATH" envDefault:"./data/ledger.db"`
	ArchiveEnabled    bool   `env:"HOLDEMD_ARCHIVE_ENABLED" envDefault:"false"`

	// Boundary
	StrictBoundary bool `env:"HOLDEMD_STRICT_BOUNDARY" envDefault:"true"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.SmallBlind <= 0 || c.BigBlind <= 0 {
		return fmt.Errorf("blinds must be positive (small=%d big=%d)", c.SmallBlind, c.BigBlind)
	}
	if c.SmallBlind >= c.BigBlind {
		return fmt.Errorf("small blind %d must be below big blind %d", c.SmallBlind, c.BigBlind)
	}
	if c.MinPlayers < 2 {
		return fmt.Errorf("min players must be at least 2, got %d", c.MinPlayers)
	}
	if c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("max players %d below min players %d", c.MaxPlayers, c.MinPlayers)
	}
	if c.RakeBps < 0 || c.RakeBps > 10000 {
		return fmt.Errorf("rake bps must be within [0, 10000], got %d", c.RakeBps)
	}
	if c.ClubShareBps+c.AgentShareBps > 10000 {
		return fmt.Errorf("club and agent shares exceed the whole rake")
	}
	return nil
}
