package main

import (
	"os"

	"github.com/tripwirehq/tripwire/cmd/tripwire/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
