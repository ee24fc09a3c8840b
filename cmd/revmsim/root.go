package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/platform/hosted"
)

var (
	// Global flags
	verbose bool
	jsonOut bool
	physMiB uint64
	virtMiB uint64
)

var rootCmd = &cobra.Command{
	Use:   "revmsim",
	Short: "Simulate a REVM boot environment inside a host process",
	Long: `revmsim hosts the REVM boot protocol on top of ordinary process
memory: simulated physical frames live in a memfd and mappings target a
reserved virtual window. It exists to poke at the memory subsystem - frame
allocation, page mapping, and the heap - without booting anything.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().Uint64Var(&physMiB, "phys", 64, "Simulated physical memory in MiB")
	rootCmd.PersistentFlags().Uint64Var(&virtMiB, "virt", 256, "Virtual reservation in MiB")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the diagnostics logger controlled by --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newPlatform builds the hosted platform from the global size flags.
func newPlatform(log *slog.Logger) (*hosted.Platform, error) {
	return hosted.New(hosted.Options{
		PhysBytes: physMiB << 20,
		VirtBytes: uintptr(virtMiB) << 20,
		Console:   os.Stdout,
		Log:       log,
	})
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func frameCountBytes(count uint64) string {
	return formatBytes(count * memory.FrameSize)
}
