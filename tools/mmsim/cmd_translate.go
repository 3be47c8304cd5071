package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"
)

// translateCmd implements subcommands.Command for the "translate" command.
type translateCmd struct{}

// Name implements subcommands.Command.
func (*translateCmd) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.
func (*translateCmd) Synopsis() string {
	return "boots the memory subsystem and translates virtual addresses"
}

// Usage implements subcommands.Command.
func (*translateCmd) Usage() string {
	return `translate <addr>...

Addresses may be given in decimal, hex (0x) or octal (0) notation.
`
}

// SetFlags implements subcommands.Command.
func (*translateCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*translateCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	addrs := make([]uint32, 0, f.NArg())
	for _, arg := range f.Args() {
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid address %q: %v\n", arg, err)
			return subcommands.ExitUsageError
		}
		addrs = append(addrs, uint32(v))
	}

	sim, _, status := setup(args)
	if sim == nil {
		return status
	}
	defer sim.Close()

	status = subcommands.ExitSuccess
	for _, virt := range addrs {
		phys, err := sim.translate(virt)
		if err != nil {
			fmt.Fprintf(os.Stdout, "0x%08x -> %v\n", virt, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Fprintf(os.Stdout, "0x%08x -> 0x%08x\n", virt, phys)
	}
	return status
}
