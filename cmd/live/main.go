package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cartridge/live/internal/checkpoint"
	"github.com/cartridge/live/internal/config"
	"github.com/cartridge/live/internal/controller"
	"github.com/cartridge/live/internal/env"
	"github.com/cartridge/live/internal/events"
	"github.com/cartridge/live/internal/history"
	"github.com/cartridge/live/internal/metrics"
	"github.com/cartridge/live/internal/playstyle"
	"github.com/cartridge/live/internal/policy"
	"github.com/cartridge/live/internal/status"
)

var (
	v          = viper.New()
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "live",
	Short: "Cartridge live instance controller",
	Long: `Live instance controller that plays a trained policy against a live or
simulated environment, hot-swapping in newer checkpoints as they appear.

Every option can also be set through a LIVE_* environment variable, a .env
file or a config file.`,
	SilenceUsage: true,
	RunE:         runLive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (any format viper reads)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading LIVE_* variables")
	if err := config.BindFlags(rootCmd.PersistentFlags(), v); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(simServerCmd, checkpointCmd, historyCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, envFile, configFile)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

// randSource derives an independent stream per consumer from one seed.
func randSource(seed, stream uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewPCG(seed, stream)
}

func newSimulator(cfg *config.Config) (*env.Simulator, error) {
	return env.NewSimulator(env.SimConfig{
		Slots:        cfg.Slots(),
		ObsSize:      cfg.ObsSize,
		ActionSize:   cfg.ActionSize,
		TimeoutSteps: cfg.TimeoutSteps(),
		Reward:       1,
		Seed:         cfg.Seed,
	})
}

// openEnvironment returns the in-process simulator, or a gRPC client checked
// against the configured layout.
func openEnvironment(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (env.Environment, error) {
	if cfg.EnvAddr == "" {
		logger.Info().Int("timeout_steps", cfg.TimeoutSteps()).Msg("Using built-in simulator")
		return newSimulator(cfg)
	}

	client, err := env.Dial(cfg.EnvAddr)
	if err != nil {
		return nil, err
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.CheckHealth(checkCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("environment at %s: %w", cfg.EnvAddr, err)
	}
	spec, err := client.Describe(checkCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("environment at %s: %w", cfg.EnvAddr, err)
	}
	if len(spec.Slots) != len(cfg.Slots()) || spec.ObsSize != cfg.ObsSize || spec.ActionSize != cfg.ActionSize {
		client.Close()
		return nil, fmt.Errorf("environment at %s serves %d slots, obs %d, actions %d; configured %d slots, obs %d, actions %d",
			cfg.EnvAddr, len(spec.Slots), spec.ObsSize, spec.ActionSize, len(cfg.Slots()), cfg.ObsSize, cfg.ActionSize)
	}
	logger.Info().Str("env_addr", cfg.EnvAddr).Int("slots", len(spec.Slots)).Msg("Connected to environment")
	return client, nil
}

func openHistory(cfg *config.Config) (history.Store, error) {
	if cfg.HistoryDB == "" {
		return history.NewMemoryStore(), nil
	}
	return history.NewSQLiteStore(cfg.HistoryDB)
}

func openPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.NoopPublisher{}, func() {}, nil
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	return pub, pub.Close, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()
	logger := newLogger(cfg.LogLevel).With().Str("session", sessionID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	environment, err := openEnvironment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer environment.Close()

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, closePublisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	resolver, err := checkpoint.NewResolver(cfg.CheckpointPattern)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(logger)
	handle := policy.NewHandle(policy.Options{
		ObsSize:    cfg.ObsSize,
		ActionSize: cfg.ActionSize,
		Sampler:    policy.NewSampler(randSource(cfg.Seed, 1)),
		Logger:     logger,
	})

	ctrl, err := controller.New(controller.Options{
		SessionID:         sessionID,
		Env:               environment,
		Slots:             cfg.Slots(),
		Handle:            handle,
		Resolver:          resolver,
		Switch:            playstyle.New(randSource(cfg.Seed, 2)),
		CheckpointDir:     cfg.CheckpointDir,
		InitialCheckpoint: cfg.InitialCheckpoint,
		ReloadInterval:    cfg.ReloadInterval,
		StepTime:          cfg.StepTime(),
		// A remote game client runs in real time on its own.
		Pace:      cfg.Pace && cfg.EnvAddr == "",
		Store:     store,
		Publisher: publisher,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var source status.Source = ctrl
	if sampler, err := status.NewProcessSampler(); err != nil {
		logger.Warn().Err(err).Msg("Process stats unavailable")
	} else {
		source = status.WithProcess(ctrl, sampler)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	if cfg.StatusAddr != "" {
		server := status.NewServer(source, store, collector, logger)
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.StatusAddr)
		})
	}
	if cfg.Console {
		printer := status.NewPrinter(source, cfg.StatusInterval, os.Stdout)
		g.Go(func() error {
			printer.Start(gctx)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info().Msg("Live controller stopped gracefully")
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
