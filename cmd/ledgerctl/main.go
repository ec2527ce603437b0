package main

import (
	"os"

	"wealthywise/internal/cli"
	"wealthywise/internal/commands"
)

func main() {
	cli.LoadEnvFile()
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
