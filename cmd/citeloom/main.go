// Command citeloom is the operator CLI for the ingestion and retrieval
// surfaces of spec §6: ingest, query, inspect, validate, and zotero
// browsing subcommands.
package main

import (
	"os"

	"github.com/Sims2k/citeloom-sub000/cmd/citeloom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
