package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cartridge/live/internal/env"
)

var simListenAddr string

var simServerCmd = &cobra.Command{
	Use:   "sim-server",
	Short: "Serve the built-in simulator over gRPC",
	Long: `Serves the built-in simulator as a cartridge.live.v1.Environment gRPC
service so a controller on another host can connect with --env-addr.`,
	RunE: runSimServer,
}

func init() {
	simServerCmd.Flags().StringVar(&simListenAddr, "listen", ":50051", "gRPC listen address")
}

func runSimServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	sim, err := newSimulator(cfg)
	if err != nil {
		return err
	}
	server := env.NewGRPCServer(sim, sim.Spec(), logger)

	lis, err := net.Listen("tcp", simListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", lis.Addr().String()).
			Int("slots", len(cfg.Slots())).
			Int("timeout_steps", cfg.TimeoutSteps()).
			Msg("Simulator listening")
		serveErr <- server.Serve(lis)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		server.Stop()
	case <-stopped:
		logger.Info().Msg("Server stopped gracefully")
	}
	return nil
}
