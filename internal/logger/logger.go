// Package logger builds the slog loggers used by the command-line tools.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	logPrefix     = "slabctl-"
	logSuffix     = ".log"
	retentionDays = 30
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures a logger.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Level   slog.Level // Minimum log level
	Format  Format     // Handler encoding. Default: text
	Output  io.Writer  // Destination when LogDir is empty. Default: stderr
	LogDir  string     // When set, log to a dated file in this directory
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger { return slog.New(slog.DiscardHandler) }

// New builds a logger from opts. The returned closer releases the log file,
// if one was opened.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if !opts.Enabled {
		return Nop(), nopCloser{}, nil
	}

	var (
		w      io.Writer = opts.Output
		closer io.Closer = nopCloser{}
	)
	if opts.LogDir != "" {
		f, err := openLogFile(opts.LogDir, time.Now())
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler
	switch opts.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, handlerOpts)
	case FormatText, "":
		h = slog.NewTextHandler(w, handlerOpts)
	default:
		_ = closer.Close()
		return nil, nil, errors.Newf("unknown log format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to a level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrapf(err, "parse log level %q", s)
	}
	return l, nil
}

func openLogFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create log dir")
	}

	// Best effort.
	cleanOldLogs(dir, now)

	name := filepath.Join(dir, logPrefix+now.Format(time.DateOnly)+logSuffix)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	return f, nil
}

// cleanOldLogs removes log files older than retentionDays.
func cleanOldLogs(dir string, now time.Time) {
	cutoff := now.AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}

		// slabctl-2024-01-05.log
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, logPrefix), logSuffix)
		logDate, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			continue
		}
		if logDate.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
