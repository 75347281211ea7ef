// Package main provides the termcrawl CLI entrypoint.
package main

import (
	"os"

	"github.com/lukemcguire/termcrawl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
