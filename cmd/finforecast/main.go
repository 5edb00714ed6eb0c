package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&fetchCmd{}, "stages")
	commander.Register(&processCmd{}, "stages")
	commander.Register(&forecastCmd{}, "stages")
	commander.Register(&optimizeCmd{}, "stages")

	commander.Register(&runCmd{}, "pipeline")
	commander.Register(&reportCmd{}, "pipeline")
	commander.Register(&scheduleCmd{}, "pipeline")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
