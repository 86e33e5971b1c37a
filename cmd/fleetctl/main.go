// Command fleetctl is the thin daemon entrypoint for the fleet state
// controller: load config, open the store, register every known
// controller type, and run until signalled to stop. No wire protocol,
// no user-facing API — everything outside the reconciliation kernel is
// intentionally minimal here.
package main

import (
	"fmt"
	"os"

	"github.com/nvidia/fleet-state-controller/cmd/fleetctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
