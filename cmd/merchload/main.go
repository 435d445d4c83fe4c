package main

import (
	"errors"
	"os"

	"github.com/wesleyorama2/merchload/internal/cli"
	"github.com/wesleyorama2/merchload/internal/engine"
)

// exitThresholdsFailed is returned when a run completed but breached a
// threshold.
const exitThresholdsFailed = 99

// Main is the entry point for the application
// It's exported to make it testable
func Main() int {
	return exitCode(cli.Execute())
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, engine.ErrThresholdsFailed):
		return exitThresholdsFailed
	default:
		return 1
	}
}

func main() {
	os.Exit(Main())
}
