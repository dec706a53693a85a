// Package log holds the process-wide zerolog logger and per-component
// children.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

var (
	API       zerolog.Logger
	Mint      zerolog.Logger
	Chain     zerolog.Logger
	Wallet    zerolog.Logger
	Fee       zerolog.Logger
	Submitter zerolog.Logger
	Store     zerolog.Logger
	Bot       zerolog.Logger
	Poller    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init switches to JSON output for production and keeps the colored console
// writer otherwise.
func Init(level string, jsonOutput bool) {
	if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}
	initComponentLoggers()
}

func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
	return zerolog.New(output).Level(parseLevel(level)).With().Timestamp().Logger()
}

func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	API = WithComponent("api")
	Mint = WithComponent("mint")
	Chain = WithComponent("chain")
	Wallet = WithComponent("wallet")
	Fee = WithComponent("fee")
	Submitter = WithComponent("submitter")
	Store = WithComponent("store")
	Bot = WithComponent("bot")
	Poller = WithComponent("poller")
}

func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
