package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel orders log severities; higher values are more severe.
type LogLevel int

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

// ParseLevel converts a level name from configuration into a LogLevel.
// Unknown names fall back to Warning.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	default:
		return Warning
	}
}

// Logger writes leveled, component-prefixed lines with trailing
// key=value pairs. The level is fixed at construction.
type Logger struct {
	out   *log.Logger
	level LogLevel
}

// NewLogger creates a logger for a named component. The level defaults
// to Warning when omitted.
func NewLogger(component string, level ...LogLevel) *Logger {
	lvl := Warning
	if len(level) > 0 {
		lvl = level[0]
	}
	return &Logger{
		out:   log.New(os.Stdout, "["+component+"] ", log.LstdFlags),
		level: lvl,
	}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.emit(Debug, "DEBUG", msg, keyvals) }

func (l *Logger) Info(msg string, keyvals ...interface{}) { l.emit(Info, "INFO", msg, keyvals) }

func (l *Logger) Warn(msg string, keyvals ...interface{}) { l.emit(Warning, "WARN", msg, keyvals) }

func (l *Logger) Error(msg string, keyvals ...interface{}) { l.emit(Error, "ERROR", msg, keyvals) }

// emit drops messages below the configured level and renders the rest.
// A dangling key without a value is ignored.
func (l *Logger) emit(severity LogLevel, tag, msg string, keyvals []interface{}) {
	if l.level > severity {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(tag)
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	l.out.Println(b.String())
}
