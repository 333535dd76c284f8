package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/argus/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger based on the given configuration
func Init(debug, verbose, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(WarnLevel) // Default log level

	if debug {
		SetLogLevel(DebugLevel)
	} else if verbose {
		SetLogLevel(InfoLevel)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(event *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{event.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// instance is a Logger bound to its own zerolog.Logger, handed to
// components so they can be tested with a silent or buffered sink.
type instance struct {
	zl zerolog.Logger
}

// New returns a Logger writing JSON lines to w.
func New(w io.Writer) Logger {
	return &instance{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Default returns a Logger that writes through the package-level
// logger configured by Init.
func Default() Logger {
	return defaultLogger{}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &instance{zl: zerolog.Nop()}
}

func (l *instance) Debug() *LogEvent { return &LogEvent{l.zl.Debug()} }
func (l *instance) Info() *LogEvent  { return &LogEvent{l.zl.Info()} }
func (l *instance) Warn() *LogEvent  { return &LogEvent{l.zl.Warn()} }
func (l *instance) Error() *LogEvent { return &LogEvent{l.zl.Error()} }

func (l *instance) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(l.zl.Error(), err)
}

func (l *instance) ErrorWithContext(err errors.Error, component, operation string) *LogEvent {
	return withContext(l.zl.Error(), err, component, operation)
}

func (l *instance) With(component string) Logger {
	return &instance{zl: l.zl.With().Str("component", component).Logger()}
}

// defaultLogger resolves the package-level logger on every call so that
// a later Init is honoured by components created before it.
type defaultLogger struct {
	component string
}

func (d defaultLogger) base() zerolog.Logger {
	if d.component == "" {
		return log
	}
	return log.With().Str("component", d.component).Logger()
}

func (d defaultLogger) Debug() *LogEvent {
	l := d.base()
	return &LogEvent{l.Debug()}
}

func (d defaultLogger) Info() *LogEvent {
	l := d.base()
	return &LogEvent{l.Info()}
}

func (d defaultLogger) Warn() *LogEvent {
	l := d.base()
	return &LogEvent{l.Warn()}
}

func (d defaultLogger) Error() *LogEvent {
	l := d.base()
	return &LogEvent{l.Error()}
}

func (d defaultLogger) ErrorWithCode(err errors.Error) *LogEvent {
	l := d.base()
	return withCode(l.Error(), err)
}

func (d defaultLogger) ErrorWithContext(err errors.Error, component, operation string) *LogEvent {
	l := d.base()
	return withContext(l.Error(), err, component, operation)
}

func (d defaultLogger) With(component string) Logger {
	return defaultLogger{component: component}
}

func withContext(event *zerolog.Event, err errors.Error, component, operation string) *LogEvent {
	return &LogEvent{event.
		Str("component", component).
		Str("operation", operation).
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}
