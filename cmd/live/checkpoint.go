package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cartridge/live/internal/checkpoint"
	"github.com/cartridge/live/internal/config"
	"github.com/cartridge/live/internal/model"
)

var (
	initVersion uint64
	initHidden  []int
	initPrefix  string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and bootstrap the checkpoint directory",
}

var checkpointInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a randomly initialised checkpoint",
	Long: `Writes a randomly initialised policy into the checkpoint directory so a
fresh deployment has something to play with before training exports one.
Without --version the file is numbered one past the newest checkpoint.`,
	RunE: runCheckpointInit,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints in version order",
	RunE:  runCheckpointList,
}

func init() {
	checkpointInitCmd.Flags().Uint64Var(&initVersion, "version", 0, "Version to write (0 picks the next one)")
	checkpointInitCmd.Flags().IntSliceVar(&initHidden, "hidden", []int{256, 256, 256}, "Hidden layer sizes")
	checkpointInitCmd.Flags().StringVar(&initPrefix, "prefix", "policy", "File name prefix")

	checkpointCmd.AddCommand(checkpointInitCmd, checkpointListCmd)
}

func nextVersion(resolver *checkpoint.Resolver, dir string) (uint64, error) {
	latest, err := resolver.Resolve(dir)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.Version + 1, nil
}

// writeRandomCheckpoint saves a fresh network as <prefix>_<version>.json.
func writeRandomCheckpoint(cfg *config.Config, resolver *checkpoint.Resolver, prefix string, version uint64, hidden []int) (checkpoint.Locator, error) {
	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		return checkpoint.Locator{}, fmt.Errorf("create checkpoint dir: %w", err)
	}
	if version == 0 {
		v, err := nextVersion(resolver, cfg.CheckpointDir)
		if err != nil {
			return checkpoint.Locator{}, err
		}
		version = v
	}

	sizes := append([]int{cfg.ObsSize}, hidden...)
	sizes = append(sizes, cfg.ActionSize)
	net, err := model.NewRandom(sizes, randSource(cfg.Seed, version))
	if err != nil {
		return checkpoint.Locator{}, err
	}

	path := filepath.Join(cfg.CheckpointDir, fmt.Sprintf("%s_%d.json", prefix, version))
	loc := resolver.Locate(path)
	if loc.Version != version {
		return checkpoint.Locator{}, fmt.Errorf("%s does not match the checkpoint pattern", filepath.Base(path))
	}
	if err := model.Save(path, net); err != nil {
		return checkpoint.Locator{}, err
	}
	return loc, nil
}

func runCheckpointInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, err := checkpoint.NewResolver(cfg.CheckpointPattern)
	if err != nil {
		return err
	}
	loc, err := writeRandomCheckpoint(cfg, resolver, initPrefix, initVersion, initHidden)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", loc)
	return nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, err := checkpoint.NewResolver(cfg.CheckpointPattern)
	if err != nil {
		return err
	}
	locs, err := resolver.List(cfg.CheckpointDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tLAYERS")
	for _, loc := range locs {
		layers := "unreadable"
		if net, err := model.Load(loc.Path()); err == nil {
			layers = fmt.Sprint(net.Layers())
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", loc.Version, loc.Name, layers)
	}
	return w.Flush()
}
