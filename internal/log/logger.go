package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnknownLevel is returned by ParseLevel for names outside
// DEBUG, INFO, WARNING and ERROR.
var ErrUnknownLevel = errors.New("unknown log level: must be one of DEBUG, INFO, WARNING, ERROR")

// LevelNames lists the accepted --log-level values in increasing severity.
var LevelNames = []string{"DEBUG", "INFO", "WARNING", "ERROR"}

// ParseLevel converts a level name to a slog.Level. Matching is
// case-insensitive and WARN is accepted as an alias of WARNING.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}

// Options configures New.
type Options struct {
	// Level is the minimum level written to every sink.
	Level slog.Level

	// Console receives log output, typically os.Stderr. Nil disables it.
	Console io.Writer

	// File is an optional log file path. Parent directories are created and
	// the file is appended to.
	File string

	// JSON switches both sinks to slog's JSON handler.
	JSON bool
}

// New creates the logger for one crawl invocation. The returned io.Closer
// releases the log file and must be closed by the caller; it is a no-op when
// no file was configured.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	writers := make([]io.Writer, 0, 2)
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // user-provided log path
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(NewSecureHandler(handler)), closer, nil
}

// NewSecureLogger returns a text logger writing to w. Verbose selects the
// debug level; otherwise only warnings and errors are written.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewSecureHandler(handler))
}

// DebugLogFile returns the timestamped log path used when DEBUG logging is
// requested without an explicit --log-file.
func DebugLogFile(now time.Time) string {
	return filepath.Join("logs", "crawling_log_"+now.Format("20060102_150405")+".log")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
