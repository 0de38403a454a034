// Command stationctl is the operator CLI for the Segment Production
// Pipeline: database migrations, reference-data seeding, and on-demand
// retention cleanup.
package main

import (
	"os"

	"github.com/stationfm/segmentpipe/cmd/stationctl/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
