package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days

	DefaultService = "forwarder"
)

// Format selects the slog handler used for records.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// FileConfig describes an optional rotating log file.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // megabytes before rotation (default 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of backups to keep (default 3)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `mapstructure:"compress"`     // Gzip rotated files
}

// Config describes how the forwarder writes its own structured log.
// Records always go to Stdout; when File.Path is set they are also written
// to a rotating file.
type Config struct {
	Service string     `mapstructure:"service"`
	Level   string     `mapstructure:"level"`
	Format  Format     `mapstructure:"format"`
	Color   bool       `mapstructure:"color"`
	File    FileConfig `mapstructure:"file"`
}

// Writer returns a lumberjack writer for File, or nil when no path is set.
func (f FileConfig) Writer() io.WriteCloser {
	if f.Path == "" {
		return nil
	}
	_ = os.MkdirAll(filepath.Dir(f.Path), 0o750)
	return &lj.Logger{
		Filename:   f.Path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// New builds a *slog.Logger writing to stdout (and the optional file).
// Every record carries the service attribute. The returned closer releases
// the log file and is never nil.
func New(c Config, stdout io.Writer) (*slog.Logger, io.Closer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	var w io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if fw := c.File.Writer(); fw != nil {
		w = io.MultiWriter(stdout, fw)
		closer = fw
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level), ReplaceAttr: replaceTime}
	var h slog.Handler
	switch c.Format {
	case FormatText:
		if c.Color {
			h = NewColorTextHandler(w, opts, true)
		} else {
			h = slog.NewTextHandler(w, opts)
		}
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	service := c.Service
	if service == "" {
		service = DefaultService
	}
	return slog.New(h).With(slog.String("service", service)), closer
}

// ParseLevel maps a textual level to slog.Level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceTime renders the top-level time as RFC3339 with milliseconds in UTC.
func replaceTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(slog.TimeKey, a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Since returns an attribute with the elapsed milliseconds since t.
func Since(t time.Time) slog.Attr {
	return slog.Int64("duration_ms", time.Since(t).Milliseconds())
}
