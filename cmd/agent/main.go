package main

import (
	"os"

	"companion-agent/cmd/agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
