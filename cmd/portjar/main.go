// Package main is the entry point for the portjar CLI.
//
// All functionality lives in internal/cli. Build-time variables are
// injected via ldflags and default to "dev", "none" and "unknown".
package main

import (
	"github.com/mmr-tortoise/portjar/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
