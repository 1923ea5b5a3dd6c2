// Package logging configures zerolog for the server and worker.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sfkse/rewriteit/app/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink controls the Logtail shipper behind the global logger. Both methods
// are no-ops when shipping is not configured.
type Sink interface {
	// Flush ships queued lines before returning.
	Flush()
	Close() error
}

// Setup installs the global logger described by cfg.
func Setup(cfg config.LogConfig) Sink {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Style, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var sink Sink = nopSink{}
	if cfg.LogtailToken != "" {
		shipper := NewLogtailWriter(cfg.LogtailHost, cfg.LogtailToken)
		out = zerolog.MultiLevelWriter(out, shipper)
		sink = shipper
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return sink
}

type nopSink struct{}

func (nopSink) Flush()       {}
func (nopSink) Close() error { return nil }
