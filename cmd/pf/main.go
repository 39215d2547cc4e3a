// Package main provides the entry point for the pf CLI.
package main

import (
	"os"

	"github.com/randalmurphal/promptfinder/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		cli.PrintError(err)
		os.Exit(1)
	}
}
