package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Logger writes leveled, timestamped, color-coded lines. Info, Warn, and
// Debug go to stdout; Error goes to stderr so import failures stay visible
// when stdout is piped.
type Logger struct {
	out *log.Logger
	err *log.Logger
}

// NewLogger creates a Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return newLoggerTo(os.Stdout, os.Stderr)
}

func newLoggerTo(out, err io.Writer) *Logger {
	return &Logger{
		out: log.New(out, "", 0),
		err: log.New(err, "", 0),
	}
}

func (l *Logger) write(dst *log.Logger, color, level, format string, args ...any) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	dst.Printf(fmt.Sprintf("[%s] %s%s\033[0m %s", ts, color, level, format), args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.write(l.out, "\033[32m", "INFO ", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.write(l.out, "\033[33m", "WARN ", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.write(l.err, "\033[31m", "ERROR", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.write(l.out, "\033[36m", "DEBUG", format, args...)
}
