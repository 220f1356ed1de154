package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/virtualgta/go-accounts"
)

// zeroLogger adapts zerolog to the accounts.Logger shape. Variadic args
// are interpreted as alternating key/value pairs.
type zeroLogger struct {
	log zerolog.Logger
}

var _ accounts.Logger = (*zeroLogger)(nil)

func newLogger(cfg LogConfig, component string) *zeroLogger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out zerolog.Logger
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		out = zerolog.New(os.Stderr)
	}

	return &zeroLogger{
		log: out.Level(level).With().
			Timestamp().
			Str("component", component).
			Logger(),
	}
}

func (z *zeroLogger) Debug(msg string, args ...any) { z.emit(z.log.Debug(), msg, args) }
func (z *zeroLogger) Info(msg string, args ...any)  { z.emit(z.log.Info(), msg, args) }
func (z *zeroLogger) Warn(msg string, args ...any)  { z.emit(z.log.Warn(), msg, args) }
func (z *zeroLogger) Error(msg string, args ...any) { z.emit(z.log.Error(), msg, args) }

func (z *zeroLogger) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
