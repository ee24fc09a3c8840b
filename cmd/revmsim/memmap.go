package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/JarlEvanson/revm/boot"
	"github.com/JarlEvanson/revm/memory"
	"github.com/JarlEvanson/revm/platform"
)

func init() {
	rootCmd.AddCommand(newMemmapCmd())
}

func newMemmapCmd() *cobra.Command {
	var (
		allocs int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "memmap",
		Short: "Print the physical memory map of a simulated platform",
		Long: `memmap builds a hosted platform, optionally fragments it with random
frame allocations, and prints the memory map the boot protocol reports.

Example:
  revmsim memmap
  revmsim memmap --allocs 16 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemmap(allocs, seed)
		},
	}
	cmd.Flags().IntVar(&allocs, "allocs", 0, "Number of random allocations before reading the map")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Seed for the random allocations")
	return cmd
}

func runMemmap(allocs int, seed int64) error {
	log := newLogger()
	p, err := newPlatform(log)
	if err != nil {
		return err
	}
	defer p.Close()

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < allocs; i++ {
		count := uint64(rng.Intn(16) + 1)
		if _, err := p.AllocateFrames(count, platform.Any()); err != nil {
			return fmt.Errorf("fragmenting memory: %w", err)
		}
	}

	table := p.NewTable()
	if err := table.Validate(); err != nil {
		return err
	}

	descriptors, key, err := readMemoryMap(table)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(struct {
			Key         uint64                  `json:"key"`
			Descriptors []boot.MemoryDescriptor `json:"descriptors"`
		}{Key: key, Descriptors: descriptors})
	}

	fmt.Printf("Memory map (key %d, %d regions):\n", key, len(descriptors))
	for _, d := range descriptors {
		start := memory.Frame(d.Number).StartAddress()
		fmt.Printf("  %#012x - %#012x  %-22s %s\n",
			uint64(start),
			uint64(start)+d.Count*memory.FrameSize,
			d.Type,
			frameCountBytes(d.Count),
		)
	}
	return nil
}

// readMemoryMap drives the two-call buffer sizing protocol.
func readMemoryMap(table *boot.GenericTable) ([]boot.MemoryDescriptor, uint64, error) {
	var buf []boot.MemoryDescriptor
	for {
		n, key, _, status := table.GetMemoryMap(buf)
		switch status {
		case boot.StatusSuccess:
			return buf[:n], key, nil
		case boot.StatusBufferTooSmall:
			buf = make([]boot.MemoryDescriptor, n)
		default:
			return nil, 0, status.Err()
		}
	}
}
