// Package logging builds the structured logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Field keys used across components.
const (
	FieldAgent    = "agent_id"
	FieldWallet   = "wallet"
	FieldToken    = "token"
	FieldPosition = "position_id"
	FieldReason   = "reason"
	FieldTrigger  = "trigger"
	FieldCode     = "code"
)

// Config selects level and format.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text or json (default: text)
	Caller bool   `yaml:"caller"` // report caller location
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// New builds a logger writing to stdout.
func New(cfg Config) (*logrus.Logger, error) {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput builds a logger writing to w.
func NewWithOutput(cfg Config, w io.Writer) (*logrus.Logger, error) {
	cfg.SetDefaults()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(w)
	log.SetReportCaller(cfg.Caller)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return log, nil
}

// Default returns an info-level text logger on stdout. Used when a component gets no logger.
func Default() logrus.FieldLogger {
	log, _ := New(Config{})
	return log
}

// Discard returns a logger that drops everything.
func Discard() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDefault returns log, or Default() when log is nil.
func OrDefault(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return Default()
	}
	return log
}
