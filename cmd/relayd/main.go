package main

import (
	"os"

	"msgrelay/cmd/relayd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
