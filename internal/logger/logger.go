package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	DEBUG = zerolog.DebugLevel
	INFO  = zerolog.InfoLevel
	WARN  = zerolog.WarnLevel
	ERROR = zerolog.ErrorLevel
	FATAL = zerolog.FatalLevel
)

type Logger struct {
	zl      zerolog.Logger
	service string
}

// New builds a logger tagged with the service name. LOG_LEVEL picks the
// minimum level, LOG_FORMAT=json switches off the console writer and
// LOG_COLORS=false drops ANSI colours from console output.
func New(service string) *Logger {
	var out io.Writer = os.Stdout
	if !strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    os.Getenv("LOG_COLORS") == "false",
		}
	}
	return NewWithWriter(service, out, ParseLevel(os.Getenv("LOG_LEVEL")))
}

func NewWithWriter(service string, out io.Writer, level Level) *Logger {
	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return &Logger{zl: ctx.Logger(), service: service}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Named returns a child logger for a component of the same service.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger(), service: l.service}
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger(), service: l.service}
}

// Zerolog exposes the underlying logger for structured call sites.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Duration logs msg at INFO with an elapsed field.
func (l *Logger) Duration(msg string, start time.Time) {
	l.zl.Info().Dur("elapsed", time.Since(start)).Msg(msg)
}

// SetStdLog redirects standard log package to use this logger
func (l *Logger) SetStdLog() {
	log.SetOutput(&stdLogWriter{logger: l})
	log.SetFlags(0)
}

type stdLogWriter struct {
	logger *Logger
}

func (w *stdLogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	w.logger.Info("%s", msg)
	return len(p), nil
}
