// Package logging builds the zap loggers used by the client, the server and
// the command-line tool.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where records go and which ones are kept.
type Options struct {
	Level        string `json:"level"`         // debug, info, warn, error
	ToConsole    bool   `json:"to_console"`    // write to stderr
	FilePath     string `json:"file_path"`     // empty disables the file output
	MaxSize      int    `json:"max_size"`      // MB before rotation
	MaxBackups   int    `json:"max_backups"`   // rotated files to keep
	MaxAge       int    `json:"max_age"`       // days to keep rotated files
	Compress     bool   `json:"compress"`      // gzip rotated files
	EnableCaller bool   `json:"enable_caller"` // add file:line
	JSON         bool   `json:"json"`          // JSON console output instead of text
}

// DefaultOptions logs info and above to the console only.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		ToConsole:  true,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// New builds a logger from opts. With neither console nor file output
// configured it returns a no-op logger.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	atom := zap.NewAtomicLevelAt(level)

	var cores []zapcore.Core
	if opts.ToConsole {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc := zapcore.NewConsoleEncoder(cfg)
		if opts.JSON {
			enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom))
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, atom))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	var zopts []zap.Option
	if opts.EnableCaller {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), zopts...), nil
}

// Must is New for the command-line entry point, where a bad configuration is fatal.
func Must(opts Options) *zap.Logger {
	l, err := New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return l
}
