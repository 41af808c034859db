// Package main is the entry point for the cordee CLI.
package main

import (
	"fmt"
	"os"

	"github.com/zjrosen/cordee"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cordee.Version = version
	setVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
