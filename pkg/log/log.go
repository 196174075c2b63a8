package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel   Level = "debug"
	VerboseLevel Level = "verbose"
	NoticeLevel  Level = "notice"
	WarningLevel Level = "warning"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from the server's `loglevel`/`logfile` directives.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case VerboseLevel:
		level = zerolog.InfoLevel
	case WarningLevel:
		level = zerolog.WarnLevel
	case NoticeLevel:
		level = zerolog.InfoLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with the subsystem name
// (server, rdb, aof, replication, vm, pubsub, ...).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithClient creates a child logger tagged with a client's connection id.
func WithClient(clientID uint64) zerolog.Logger {
	return Logger.With().Uint64("client_id", clientID).Logger()
}

// WithDB creates a child logger tagged with a database index.
func WithDB(dbID int) zerolog.Logger {
	return Logger.With().Int("db", dbID).Logger()
}

// WithCommand creates a child logger tagged with a command name.
func WithCommand(name string) zerolog.Logger {
	return Logger.With().Str("cmd", name).Logger()
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
