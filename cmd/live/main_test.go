package main

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/live/internal/checkpoint"
	"github.com/cartridge/live/internal/config"
	"github.com/cartridge/live/internal/env"
	"github.com/cartridge/live/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CheckpointDir = t.TempDir()
	cfg.ObsSize = 6
	cfg.ActionSize = 9
	cfg.Seed = 1
	return cfg
}

func TestWriteRandomCheckpoint_NumbersSequentially(t *testing.T) {
	cfg := testConfig(t)
	resolver, err := checkpoint.NewResolver(cfg.CheckpointPattern)
	require.NoError(t, err)

	first, err := writeRandomCheckpoint(cfg, resolver, "policy", 0, []int{4})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)

	explicit, err := writeRandomCheckpoint(cfg, resolver, "policy", 9, []int{4})
	require.NoError(t, err)
	assert.Equal(t, "policy_9.json", explicit.Name)

	next, err := writeRandomCheckpoint(cfg, resolver, "policy", 0, []int{4})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), next.Version)

	latest, err := resolver.Resolve(cfg.CheckpointDir)
	require.NoError(t, err)
	assert.Equal(t, next, latest)

	loaded, err := model.Load(latest.Path())
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.InputSize())
	assert.Equal(t, []int{4, 9}, loaded.Layers())
}

func TestWriteRandomCheckpoint_RejectsUnparseableName(t *testing.T) {
	cfg := testConfig(t)
	resolver, err := checkpoint.NewResolver(`^ckpt-(\d+)\.json$`)
	require.NoError(t, err)

	_, err = writeRandomCheckpoint(cfg, resolver, "policy", 3, []int{4})
	assert.Error(t, err)
}

func startSimServer(t *testing.T, slots []env.Slot) string {
	t.Helper()
	sim, err := env.NewSimulator(env.SimConfig{Slots: slots, ObsSize: 6, ActionSize: 9, Seed: 1})
	require.NoError(t, err)
	server := env.NewGRPCServer(sim, sim.Spec(), zerolog.Nop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)
	return lis.Addr().String()
}

func TestOpenEnvironment(t *testing.T) {
	t.Run("simulator when no address", func(t *testing.T) {
		e, err := openEnvironment(context.Background(), testConfig(t), zerolog.Nop())
		require.NoError(t, err)
		defer e.Close()
		_, ok := e.(*env.Simulator)
		assert.True(t, ok)
	})

	t.Run("remote with matching layout", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EnvAddr = startSimServer(t, env.Slots(1, 1))
		e, err := openEnvironment(context.Background(), cfg, zerolog.Nop())
		require.NoError(t, err)
		defer e.Close()

		obs, err := e.Reset(context.Background())
		require.NoError(t, err)
		assert.Len(t, obs, 2)
	})

	t.Run("remote with different slots", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EnvAddr = startSimServer(t, env.Slots(2, 2))
		_, err := openEnvironment(context.Background(), cfg, zerolog.Nop())
		assert.Error(t, err)
	})
}
