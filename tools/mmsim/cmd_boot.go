package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"gopher386/kernel/mm"
	"gopher386/kernel/mm/vmm"
)

// bootCmd implements subcommands.Command for the "boot" command.
type bootCmd struct {
	screen bool
}

// Name implements subcommands.Command.
func (*bootCmd) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.
func (*bootCmd) Synopsis() string {
	return "boots the memory subsystem and prints the frame and mapping summary"
}

// Usage implements subcommands.Command.
func (*bootCmd) Usage() string {
	return `boot [-screen]
`
}

// SetFlags implements subcommands.Command.
func (b *bootCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.screen, "screen", false, "also print the VGA text console.")
}

// Execute implements subcommands.Command.Execute.
func (b *bootCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	sim, log, status := setup(args)
	if sim == nil {
		return status
	}
	defer sim.Close()

	ranges, err := sim.mappings()
	if err != nil {
		log.WithError(err).Error("walking page tables")
		return subcommands.ExitFailure
	}

	printSummary(os.Stdout, sim.frameStats(), ranges)
	if b.screen {
		fmt.Fprintln(os.Stdout, "console:")
		sim.dumpScreen(os.Stdout)
	}
	return subcommands.ExitSuccess
}

func printSummary(w io.Writer, stats frameStats, ranges []mappingRange) {
	fmt.Fprintf(w, "frames: %d total, first free %d, %d free\n", stats.Max, stats.First, stats.Free)
	fmt.Fprintln(w, "mappings:")
	for _, r := range ranges {
		size := mm.Size(r.Pages) * mm.PageSize
		fmt.Fprintf(w, "  0x%08x-0x%08x -> 0x%08x %6d pages %s\n", r.Virt, uint64(r.Virt)+uint64(size), r.Phys, r.Pages, flagString(r.Flags))
	}
}

// flagString renders flags using the usual single letter notation.
func flagString(flags vmm.Flag) string {
	names := []struct {
		flag vmm.Flag
		name string
	}{
		{vmm.FlagPresent, "P"},
		{vmm.FlagWritable, "W"},
		{vmm.FlagUser, "U"},
		{vmm.FlagWriteThrough, "WT"},
		{vmm.FlagNotCacheable, "NC"},
		{vmm.FlagGlobal, "G"},
	}

	out := ""
	for _, n := range names {
		if flags&n.flag == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if out == "" {
		return "-"
	}
	return out
}
