// Command budget-period prints budget periods for a date and month start day.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"budget/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&showCmd{}, "periods")
	commander.Register(&listCmd{}, "periods")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
