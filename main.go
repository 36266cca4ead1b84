// main is the entry point for the metaspot CLI.
package main

import (
	"github.com/pkmeta/metaspot/cmd"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/iocache"
)

func main() {
	defer iocache.CloseCaching()
	defer cmd.SyncLogger()
	defer func() {
		if err := cmd.StopProfiling(); err != nil {
			contract.LogWarn("Failed to stop profiling", err)
		}
	}()

	if err := cmd.Execute(); err != nil {
		contract.LogFatal("Error starting CLI", err)
	}
}
