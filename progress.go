package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Progress reports pipeline progress with elapsed time through a zerolog logger.
type Progress struct {
	start   time.Time
	verbose bool
	zl      zerolog.Logger
}

// ProgressConfig configures NewProgress.
type ProgressConfig struct {
	Verbose bool
	JSON    bool      // plain JSON lines instead of the console writer
	Output  io.Writer // defaults to os.Stderr
}

// NewProgress creates a progress reporter.
func NewProgress(cfg ProgressConfig) *Progress {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	return &Progress{
		start:   time.Now(),
		verbose: cfg.Verbose,
		zl:      zerolog.New(out).With().Timestamp().Logger().Level(level),
	}
}

// NopProgress discards everything. Used by tests and library callers.
func NopProgress() *Progress {
	return &Progress{start: time.Now(), zl: zerolog.Nop()}
}

func (p *Progress) elapsed() string {
	elapsed := time.Since(p.start)
	return fmt.Sprintf("%02d:%02d", int(elapsed.Minutes()), int(elapsed.Seconds())%60)
}

// Log prints a progress message.
func (p *Progress) Log(format string, args ...any) {
	p.zl.Info().Str("elapsed", p.elapsed()).Msgf(format, args...)
}

// Verbose prints only when verbose mode is enabled.
func (p *Progress) Verbose(format string, args ...any) {
	if p.verbose {
		p.zl.Debug().Str("elapsed", p.elapsed()).Msgf(format, args...)
	}
}

// Warn prints a warning-level message.
func (p *Progress) Warn(format string, args ...any) {
	p.zl.Warn().Str("elapsed", p.elapsed()).Msgf(format, args...)
}

// Logger exposes the underlying logger for structured fields.
func (p *Progress) Logger() *zerolog.Logger {
	return &p.zl
}
