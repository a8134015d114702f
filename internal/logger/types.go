package logger

import (
	"io"
	"strings"
)

// Logger is the logging surface used across hotfolder
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Sync() error     // flush buffered output
	Shutdown() error // close owned writers
}

// Level is a log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level (case-insensitive)
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format is the line encoding
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// String returns the string representation of the format
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat parses a string into a Format (case-insensitive)
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Output is a log destination
type Output int

const (
	OutputStdout Output = iota
	OutputStderr
	OutputFile
)

// Config configures NewSlogLogger
type Config struct {
	Level   Level
	Format  Format
	Outputs []OutputConfig
	File    FileConfig
}

// OutputConfig selects one destination; Writer overrides it (tests)
type OutputConfig struct {
	Type   Output
	Writer io.Writer
}

// FileConfig configures the rotating log file
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// ConsoleConfig is the common setup: stderr plus an optional rotating file
func ConsoleConfig(level, format, filePath string) Config {
	cfg := Config{
		Level:   ParseLevel(level),
		Format:  ParseFormat(format),
		Outputs: []OutputConfig{{Type: OutputStderr}},
	}
	if filePath != "" {
		cfg.File = FileConfig{
			Enabled:    true,
			Path:       filePath,
			MaxSizeMB:  10,
			MaxAgeDays: 14,
			MaxBackups: 5,
			Compress:   true,
		}
		cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputFile})
	}
	return cfg
}
