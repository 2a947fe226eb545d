package main

import (
	"os"

	"github.com/slorun/slorun/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
