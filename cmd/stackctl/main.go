package main

import (
	"os"

	"github.com/stackwave/stackctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
