// Command mmsim boots the kernel memory subsystem on a simulated i386
// machine and reports the resulting frame allocator, page table and heap
// state.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to the TOML machine description. Defaults are used if empty.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(bootCmd), "")
	subcommands.Register(new(translateCmd), "")
	subcommands.Register(new(heapCmd), "")

	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background(), log)))
}

// setup loads the machine description and boots a simulation. It is shared
// by all commands.
func setup(args []any) (*simulation, *logrus.Logger, subcommands.ExitStatus) {
	log := args[0].(*logrus.Logger)

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("loading machine config")
		return nil, log, subcommands.ExitUsageError
	}

	sim, err := boot(conf, log)
	if err != nil {
		log.WithError(err).Error("booting machine")
		return nil, log, subcommands.ExitFailure
	}
	return sim, log, subcommands.ExitSuccess
}
