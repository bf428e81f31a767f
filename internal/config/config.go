// Package config holds the live controller configuration.
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/live/internal/checkpoint"
	"github.com/cartridge/live/internal/env"
)

// Ticks per second of the game physics. The step cadence is TickSkip ticks.
const defaultTickRate = 120

// Config holds all live controller configuration
type Config struct {
	// Environment
	EnvAddr     string `mapstructure:"env_addr"`
	BlueCount   int    `mapstructure:"blue_count"`
	OrangeCount int    `mapstructure:"orange_count"`
	ObsSize     int    `mapstructure:"obs_size"`
	ActionSize  int    `mapstructure:"action_size"`
	Seed        uint64 `mapstructure:"seed"`

	// Cadence
	TickSkip       int           `mapstructure:"tick_skip"`
	TickRate       int           `mapstructure:"tick_rate"`
	EpisodeTimeout time.Duration `mapstructure:"episode_timeout"`
	Pace           bool          `mapstructure:"pace"`

	// Checkpoints
	CheckpointDir     string        `mapstructure:"checkpoint_dir"`
	CheckpointPattern string        `mapstructure:"checkpoint_pattern"`
	InitialCheckpoint string        `mapstructure:"initial_checkpoint"`
	ReloadInterval    time.Duration `mapstructure:"reload_interval"`

	// Status reporting
	StatusInterval time.Duration `mapstructure:"status_interval"`
	StatusAddr     string        `mapstructure:"status_addr"`
	Console        bool          `mapstructure:"console"`

	// Persistence and fan-out
	HistoryDB   string `mapstructure:"history_db"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		EnvAddr:           "", // in-process simulator
		BlueCount:         1,
		OrangeCount:       1,
		ObsSize:           89,
		ActionSize:        90,
		Seed:              0, // time-seeded
		TickSkip:          8,
		TickRate:          defaultTickRate,
		EpisodeTimeout:    7 * time.Second,
		Pace:              true,
		CheckpointDir:     "checkpoints",
		CheckpointPattern: checkpoint.DefaultPattern,
		ReloadInterval:    15 * time.Minute,
		StatusInterval:    time.Second,
		NATSSubject:       "live.events",
		LogLevel:          "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BlueCount < 1 {
		return fmt.Errorf("blue_count must be at least 1")
	}
	if c.OrangeCount < 0 {
		return fmt.Errorf("orange_count must not be negative")
	}
	if c.ObsSize <= 0 || c.ActionSize <= 0 {
		return fmt.Errorf("obs_size and action_size must be positive")
	}
	if c.TickSkip <= 0 || c.TickRate <= 0 {
		return fmt.Errorf("tick_skip and tick_rate must be positive")
	}
	if c.StepTime() <= 0 {
		return fmt.Errorf("tick_skip/tick_rate must be at least 1ns per step")
	}
	if c.EpisodeTimeout <= 0 {
		return fmt.Errorf("episode_timeout must be positive")
	}
	if c.ReloadInterval <= 0 {
		return fmt.Errorf("reload_interval must be positive")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive")
	}
	if c.CheckpointDir == "" && c.InitialCheckpoint == "" {
		return fmt.Errorf("checkpoint_dir or initial_checkpoint is required")
	}
	if _, err := regexp.Compile(c.CheckpointPattern); err != nil {
		return fmt.Errorf("checkpoint_pattern: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// StepTime is the wall-clock duration of one environment step.
func (c *Config) StepTime() time.Duration {
	return time.Duration(c.TickSkip) * time.Second / time.Duration(c.TickRate)
}

// TimeoutSteps converts the episode timeout into whole steps, at least one.
func (c *Config) TimeoutSteps() int {
	steps := int(c.EpisodeTimeout / c.StepTime())
	if steps < 1 {
		return 1
	}
	return steps
}

// Slots lays out the session's agents.
func (c *Config) Slots() []env.Slot {
	return env.Slots(c.BlueCount, c.OrangeCount)
}
