package main

import (
	"os"

	"github.com/rfoltyns/esfailover/internal/cmd/admin"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

func main() {
	// Respect ESFAILOVER_LOG_LEVEL for output emitted before a command loads its config
	level := os.Getenv("ESFAILOVER_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(logpkg.WithLevel(parsed))

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	if err := admin.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
