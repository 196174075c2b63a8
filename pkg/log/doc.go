/*
Package log provides structured logging for burrow using zerolog.

The log package wraps zerolog to provide JSON-structured (or console)
logging with component-specific child loggers, a configurable severity
threshold, and a handful of helpers used throughout the dispatch loop,
persistence, replication, and VM subsystems.

# Usage

	log.Init(log.Config{
		Level:      log.NoticeLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("burrow starting")

	rdbLog := log.WithComponent("rdb")
	rdbLog.Info().Str("file", path).Msg("loaded snapshot")

	cmdLog := log.WithCommand("SET")
	cmdLog.Debug().Uint64("client", clientID).Msg("dispatched")

# Levels

debug, verbose, notice, warning — matching the four severities recognized
by the `loglevel` config directive (§6). `verbose` and `notice` both map to
zerolog's info level; the distinction exists only so `loglevel notice` and
`loglevel verbose` in a config file are both accepted without error.
*/
package log
