package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// LegacyLogger prints plain lines with fmt; kept as a fallback
type LegacyLogger struct {
	level  Level
	fields []any
	out    io.Writer
	errOut io.Writer
	mu     *sync.RWMutex
}

// NewLegacyLogger creates a legacy logger at info level
func NewLegacyLogger() *LegacyLogger {
	return &LegacyLogger{
		level:  LevelInfo,
		out:    os.Stdout,
		errOut: os.Stderr,
		mu:     &sync.RWMutex{},
	}
}

// SetLevel sets the minimum level
func (l *LegacyLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *LegacyLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *LegacyLogger) print(w io.Writer, tag, msg string, args []any) {
	all := append(append([]any{}, l.fields...), args...)
	if len(all) == 0 {
		fmt.Fprintf(w, "[%s] %s\n", tag, msg)
		return
	}
	fmt.Fprintf(w, "[%s] %s %v\n", tag, msg, all)
}

// Debug logs at debug level
func (l *LegacyLogger) Debug(msg string, args ...any) {
	if l.shouldLog(LevelDebug) {
		l.print(l.out, "DEBUG", msg, args)
	}
}

// Info logs at info level
func (l *LegacyLogger) Info(msg string, args ...any) {
	if l.shouldLog(LevelInfo) {
		l.print(l.out, "INFO", msg, args)
	}
}

// Warn logs at warn level
func (l *LegacyLogger) Warn(msg string, args ...any) {
	if l.shouldLog(LevelWarn) {
		l.print(l.errOut, "WARN", msg, args)
	}
}

// Error logs at error level
func (l *LegacyLogger) Error(msg string, args ...any) {
	if l.shouldLog(LevelError) {
		l.print(l.errOut, "ERROR", msg, args)
	}
}

// With returns a child that prefixes args to every line
func (l *LegacyLogger) With(args ...any) Logger {
	l.mu.RLock()
	level := l.level
	l.mu.RUnlock()
	return &LegacyLogger{
		level:  level,
		fields: append(append([]any{}, l.fields...), args...),
		out:    l.out,
		errOut: l.errOut,
		mu:     l.mu,
	}
}

// Sync is a no-op
func (l *LegacyLogger) Sync() error {
	return nil
}

// Shutdown is a no-op
func (l *LegacyLogger) Shutdown() error {
	return nil
}
