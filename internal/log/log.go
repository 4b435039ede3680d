// Package log holds the zerolog loggers shared by the klingpay daemon.
//
// Every subsystem logs through its own component logger so lines can be
// filtered by the "component" field. Once the node knows which cluster it
// serves, SetNetwork stamps a "network" field onto all of them.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05"

// Logger is the root logger. Component loggers derive from it.
var Logger zerolog.Logger

var (
	Node     zerolog.Logger
	RPC      zerolog.Logger
	Wallet   zerolog.Logger
	Upstream zerolog.Logger
	Market   zerolog.Logger
	Trade    zerolog.Logger
	Cache    zerolog.Logger
	Storage  zerolog.Logger
)

var components = []struct {
	name string
	dst  *zerolog.Logger
}{
	{"node", &Node},
	{"rpc", &RPC},
	{"wallet", &Wallet},
	{"upstream", &Upstream},
	{"market", &Market},
	{"trade", &Trade},
	{"cache", &Cache},
	{"storage", &Storage},
}

func init() {
	setRoot(NewConsoleLogger(os.Stdout, "info"))
}

// Init replaces the root logger. Console output is colored unless
// jsonOutput is set. A non-empty file additionally receives every line as
// JSON, which is what log shippers expect regardless of the console mode.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stdout
	if !jsonOutput {
		console = consoleWriter(os.Stdout)
	}

	out := console
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(console, f)
	}

	setRoot(newLogger(out, level))
	return nil
}

// SetNetwork tags the root and component loggers with the cluster name.
func SetNetwork(network string) {
	setRoot(Logger.With().Str("network", network).Logger())
}

// NewConsoleLogger creates a colored, human-oriented logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger creates a logger emitting one JSON object per line.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

// WithComponent derives a logger carrying a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func setRoot(l zerolog.Logger) {
	Logger = l
	for _, c := range components {
		*c.dst = WithComponent(c.name)
	}
}

// parseLevel maps the four configurable level names and falls back to info.
// Anything zerolog would additionally accept (trace, panic, ...) is
// rejected by config validation before it reaches here.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
