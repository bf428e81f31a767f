package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/live/internal/env"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.ReloadInterval)
	assert.Equal(t, 105, cfg.TimeoutSteps(), "7s at 8 ticks of 1/120s")
	assert.Equal(t, 66666666*time.Nanosecond, cfg.StepTime())
	assert.Equal(t, []env.Slot{{Team: env.Blue}, {Team: env.Orange}}, cfg.Slots())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no blue agents", func(c *Config) { c.BlueCount = 0 }},
		{"negative orange", func(c *Config) { c.OrangeCount = -1 }},
		{"zero obs size", func(c *Config) { c.ObsSize = 0 }},
		{"zero tick skip", func(c *Config) { c.TickSkip = 0 }},
		{"step shorter than 1ns", func(c *Config) { c.TickSkip, c.TickRate = 1, 2_000_000_000 }},
		{"zero timeout", func(c *Config) { c.EpisodeTimeout = 0 }},
		{"zero reload interval", func(c *Config) { c.ReloadInterval = 0 }},
		{"no checkpoint source", func(c *Config) { c.CheckpointDir = "" }},
		{"bad pattern", func(c *Config) { c.CheckpointPattern = "(" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	solo := Default()
	solo.OrangeCount = 0
	assert.NoError(t, solo.Validate())
	assert.Len(t, solo.Slots(), 1)
}

func TestTimeoutSteps_AtLeastOne(t *testing.T) {
	cfg := Default()
	cfg.EpisodeTimeout = time.Millisecond
	assert.Equal(t, 1, cfg.TimeoutSteps())
}

func newFlags(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("live", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs, v))
	require.NoError(t, fs.Parse(args))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t), "", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "live.yaml")
	require.NoError(t, os.WriteFile(file, []byte("tick_skip: 4\nblue_count: 3\ncheckpoint_dir: /srv/ckpt\n"), 0o644))
	t.Setenv("LIVE_BLUE_COUNT", "2")
	t.Setenv("LIVE_ORANGE_COUNT", "0")

	v := newFlags(t, "--reload-interval=1m", "--checkpoint-dir=/data/ckpt", "--pace=false")
	cfg, err := Load(v, "", file)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.ReloadInterval, "flag")
	assert.Equal(t, "/data/ckpt", cfg.CheckpointDir, "flag beats file")
	assert.False(t, cfg.Pace)
	assert.Equal(t, 2, cfg.BlueCount, "env beats file")
	assert.Equal(t, 0, cfg.OrangeCount)
	assert.Equal(t, 4, cfg.TickSkip, "file beats default")
	assert.Equal(t, 120, cfg.TickRate)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LIVE_SEED=42\nLIVE_STATUS_ADDR=:8090\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("LIVE_SEED")
		os.Unsetenv("LIVE_STATUS_ADDR")
	})

	cfg, err := Load(newFlags(t), envFile, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, ":8090", cfg.StatusAddr)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(newFlags(t), filepath.Join(t.TempDir(), ".env"), "")
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(newFlags(t, "--tick-rate=0"), "", "")
	assert.Error(t, err)

	_, err = Load(newFlags(t), "", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
