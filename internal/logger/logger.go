// Package logger provides JSON structured logging using zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level to log (debug, info, warn, error).
	Level string
	// File is the path to the log file. If empty, logs go to stderr only.
	File string
	// MaxSizeMB is the maximum size of the log file before rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
}

var (
	mu     sync.Mutex
	global = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the package-level logger. Safe to call more than once,
// the last call wins.
func Init(cfg Config) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
	}

	mu.Lock()
	defer mu.Unlock()
	global = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

// L returns the package-level logger.
func L() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return global
}
