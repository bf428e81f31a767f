package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LIVE_RELOAD_INTERVAL.
const EnvPrefix = "LIVE"

// BindFlags registers one flag per option on fs, defaulting to Default(), and
// binds each to v under its mapstructure key.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	d := Default()

	// Environment
	fs.String("env-addr", d.EnvAddr, "gRPC environment address (empty runs the built-in simulator)")
	fs.Int("blue-count", d.BlueCount, "Number of blue agents")
	fs.Int("orange-count", d.OrangeCount, "Number of orange agents (0 disables opponents)")
	fs.Int("obs-size", d.ObsSize, "Observation width the policy expects")
	fs.Int("action-size", d.ActionSize, "Number of discrete actions")
	fs.Uint64("seed", d.Seed, "Random seed (0 seeds from the clock)")

	// Cadence
	fs.Int("tick-skip", d.TickSkip, "Physics ticks per environment step")
	fs.Int("tick-rate", d.TickRate, "Physics ticks per second")
	fs.Duration("episode-timeout", d.EpisodeTimeout, "In-episode timeout")
	fs.Bool("pace", d.Pace, "Sleep to the real-time step cadence")

	// Checkpoints
	fs.String("checkpoint-dir", d.CheckpointDir, "Directory watched for new checkpoints")
	fs.String("checkpoint-pattern", d.CheckpointPattern, "Regexp with one group capturing the version")
	fs.String("initial-checkpoint", d.InitialCheckpoint, "Checkpoint loaded at startup (empty uses the newest)")
	fs.Duration("reload-interval", d.ReloadInterval, "Interval between checkpoint reloads")

	// Status reporting
	fs.Duration("status-interval", d.StatusInterval, "Console state report refresh interval")
	fs.String("status-addr", d.StatusAddr, "HTTP status listen address (empty disables)")
	fs.Bool("console", d.Console, "Render the live state report on stdout")

	// Persistence and fan-out
	fs.String("history-db", d.HistoryDB, "SQLite file for session history (empty keeps it in memory)")
	fs.String("nats-url", d.NATSURL, "NATS server URL for events (empty disables)")
	fs.String("nats-subject", d.NATSSubject, "NATS subject prefix")

	// Logging
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(key(f.Name), f)
	})
	return err
}

// Load resolves the configuration. Precedence, highest first: flags set on
// the command line, LIVE_* environment variables (including those from
// envFile), configFile, defaults. Empty file names are skipped; a missing
// envFile is not an error.
func Load(v *viper.Viper, envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func key(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}
