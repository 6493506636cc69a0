package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "settlement-reconciler"

// New creates the process logger: JSON on stdout, or a console writer when
// pretty is set. level is one of debug, info, warn, error.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return build(w, level).With().
		Caller().
		Str("service", serviceName).
		Logger()
}

// NewWithWriter creates a logger writing to w. Used by tests.
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	return build(w, level)
}

func build(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// ForRail returns a sub-logger tagged with the rail name.
func ForRail(log zerolog.Logger, rail string) zerolog.Logger {
	return log.With().Str("rail", rail).Logger()
}

// ForBatch returns a sub-logger tagged with the settlement batch id.
func ForBatch(log zerolog.Logger, batchID int64) zerolog.Logger {
	return log.With().Int64("batch_id", batchID).Logger()
}

// ForRecord returns a sub-logger tagged with an external record key.
func ForRecord(log zerolog.Logger, key string) zerolog.Logger {
	return log.With().Str("record_key", key).Logger()
}

// ForInstruction returns a sub-logger tagged with an instruction id.
func ForInstruction(log zerolog.Logger, id int64) zerolog.Logger {
	return log.With().Int64("instruction_id", id).Logger()
}

// parseLevel falls back to info for empty or unknown levels.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
