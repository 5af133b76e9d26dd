// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger = zerolog.Nop()
	format        = "json"
)

// Init initializes the default logger with the specified level and format.
// Format "text" writes human-readable lines; anything else writes JSON.
func Init(level string, logFormat string) {
	format = strings.ToLower(logFormat)
	setup(os.Stderr, level)
}

// SetOutput redirects the default logger, keeping the configured format.
func SetOutput(w io.Writer, level string) {
	setup(w, level)
}

func setup(w io.Writer, level string) {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		l = zerolog.InfoLevel
	}

	out := w
	if format == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000", NoColor: true}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	defaultLogger = zerolog.New(out).Level(l).With().Timestamp().Logger()
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug().Msg(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info().Msg(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn().Msg(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error().Msg(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	defaultLogger.WithLevel(zerolog.FatalLevel).Msg(msg)
	os.Exit(1)
}
