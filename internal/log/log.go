// Package log is a thin key/value logging façade over zerolog. Call sites
// use flat kv pairs ("key", value, ...) and never depend on the backend.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var logger = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}).With().Timestamp().Logger().Level(zerolog.InfoLevel)

// SetLevel sets the minimum level for all subsequent log calls.
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		logger = logger.Level(zerolog.DebugLevel)
	case LevelError:
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		logger = logger.Level(zerolog.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	emit(logger.Debug(), msg, kv)
}

func Info(msg string, kv ...any) {
	emit(logger.Info(), msg, kv)
}

func Error(msg string, err error, kv ...any) {
	emit(logger.Error().Err(err), msg, kv)
}

// emit attaches kv as alternating key/value pairs. A trailing key with no
// value is dropped, matching the lenient contract of the old formatter.
func emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
