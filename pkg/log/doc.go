// Package log provides esfailover's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. It is backed by logrus; callers
// never touch logrus directly except to pick a formatter.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(log.TextFormatter()),
//	)
//	l = l.With(log.Component("failover"), log.Str("file", "/var/lib/esfailover"))
//	l.Info("policy started", log.Int("batch_size", 1000))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// text|json format).
//
// # Interop
//
// Pebble writes through the standard library logger; RedirectStdLog routes
// those lines into a Logger.
package log
