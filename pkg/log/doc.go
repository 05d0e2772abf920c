// Package log provides structured logging for Oxbow components.
//
// Loggers carry typed fields and write through a Formatter/Output pipeline:
//
//	logger := log.NewLogger(log.WithLevel(log.DebugLevel), log.WithFormatter(&log.TextFormatter{}))
//	logger = logger.With(log.Component("streambuf"))
//	logger.Info("append", log.Str("stream", id), log.Int("events", n))
//
// ApplyConfig builds a logger from a level/format pair, which is how the
// server and tests construct process-wide loggers. RedirectStdLog routes
// stdlib log output (Pebble uses it) through a Logger.
package log
