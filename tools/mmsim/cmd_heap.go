package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
)

// heapCmd implements subcommands.Command for the "heap" command.
type heapCmd struct{}

// Name implements subcommands.Command.
func (*heapCmd) Name() string {
	return "heap"
}

// Synopsis implements subcommands.Command.
func (*heapCmd) Synopsis() string {
	return "boots the memory subsystem and replays the configured heap trace"
}

// Usage implements subcommands.Command.
func (*heapCmd) Usage() string {
	return `heap
`
}

// SetFlags implements subcommands.Command.
func (*heapCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*heapCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	sim, log, status := setup(args)
	if sim == nil {
		return status
	}
	defer sim.Close()

	ptrs, err := sim.replayHeapTrace(log)
	if err != nil {
		log.WithError(err).Error("replaying heap trace")
		return subcommands.ExitFailure
	}

	printHeap(os.Stdout, ptrs, sim.heapBlocks())
	return subcommands.ExitSuccess
}

func printHeap(w io.Writer, ptrs []uintptr, blocks []heapBlock) {
	fmt.Fprintln(w, "allocations:")
	for i, ptr := range ptrs {
		if ptr == 0 {
			fmt.Fprintf(w, "  #%d failed\n", i)
			continue
		}
		fmt.Fprintf(w, "  #%d 0x%08x\n", i, ptr)
	}

	fmt.Fprintf(w, "live blocks: %d\n", len(blocks))
	for _, b := range blocks {
		fmt.Fprintf(w, "  0x%08x size %d align %d\n", b.Payload, b.Size, b.Align)
	}
}
