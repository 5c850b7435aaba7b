package config

import (
	"io"
	"log"
	"os"
)

// LogLevel controls how much the analysis logs.
type LogLevel int

const (
	// ErrLevel is the minimum level: only errors are logged.
	ErrLevel LogLevel = iota + 1
	// WarnLevel logs warnings and errors.
	WarnLevel
	// InfoLevel logs high-level progress, in addition to warnings and errors.
	InfoLevel
	// DebugLevel logs per-method analysis detail. Safe to run on large
	// programs.
	DebugLevel
	// TraceLevel logs per-instruction and per-block detail. Only practical on
	// small test programs.
	TraceLevel
)

// LogGroup is a set of leveled loggers sharing one threshold.
type LogGroup struct {
	level LogLevel
	trace *log.Logger
	debug *log.Logger
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
}

// NewLogGroup returns a LogGroup configured at the given level.
func NewLogGroup(level LogLevel) *LogGroup {
	l := &LogGroup{
		level: level,
		trace: log.New(os.Stderr, "[TRACE] ", log.LstdFlags),
		debug: log.New(os.Stderr, "[DEBUG] ", log.LstdFlags),
		info:  log.New(os.Stderr, "[INFO] ", log.LstdFlags),
		warn:  log.New(os.Stderr, "[WARN] ", log.LstdFlags),
		err:   log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
	}
	return l
}

// SetAllOutput redirects every level's output to w.
func (l *LogGroup) SetAllOutput(w io.Writer) {
	l.trace.SetOutput(w)
	l.debug.SetOutput(w)
	l.info.SetOutput(w)
	l.warn.SetOutput(w)
	l.err.SetOutput(w)
}

// LogsDebug reports whether Debug-level (or more verbose) messages are kept.
func (l *LogGroup) LogsDebug() bool { return l.level >= DebugLevel }

// LogsTrace reports whether Trace-level messages are kept.
func (l *LogGroup) LogsTrace() bool { return l.level >= TraceLevel }

// Tracef logs at Trace level.
func (l *LogGroup) Tracef(format string, v ...any) {
	if l.level >= TraceLevel {
		l.trace.Printf(format, v...)
	}
}

// Debugf logs at Debug level.
func (l *LogGroup) Debugf(format string, v ...any) {
	if l.level >= DebugLevel {
		l.debug.Printf(format, v...)
	}
}

// Infof logs at Info level.
func (l *LogGroup) Infof(format string, v ...any) {
	if l.level >= InfoLevel {
		l.info.Printf(format, v...)
	}
}

// Warnf logs at Warn level.
func (l *LogGroup) Warnf(format string, v ...any) {
	if l.level >= WarnLevel {
		l.warn.Printf(format, v...)
	}
}

// Errorf logs at Error level.
func (l *LogGroup) Errorf(format string, v ...any) {
	if l.level >= ErrLevel {
		l.err.Printf(format, v...)
	}
}
