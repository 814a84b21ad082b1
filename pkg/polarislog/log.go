// Package polarislog wires logrus as the runtime's sole logging façade,
// with optional size-rotated file output.
package polarislog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the optional log file sink (the top-level "log"
// block of config.Config).
type Config struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      string
}

// Setup points logrus's default logger at stderr plus, if cfg.File is
// set, a size-rotated file, and applies cfg.Level. cmd/polaris-probe
// calls it once while loading its configuration.
func Setup(cfg Config) error {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		if l, err := logrus.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}
	logrus.SetLevel(level)

	out := io.Writer(os.Stderr)
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		})
	}
	logrus.SetOutput(out)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
