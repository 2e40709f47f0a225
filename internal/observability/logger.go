package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"

	"git.home.luguber.info/inful/hotpatch/internal/config"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "HOTPATCH_LOG_LEVEL"

// LoggerOptions describes the root logger.
type LoggerOptions struct {
	Logging config.LoggingConfig
	// Verbose forces debug level regardless of configuration.
	Verbose bool
	// Writer receives the terminal output; defaults to os.Stderr.
	Writer io.Writer
}

// Logger bundles the root logger with the resources it holds open.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar

	closers []io.Closer
}

// Close releases file sinks.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}

// NewLogger builds the root logger: a text or JSON terminal handler, an
// optional JSON file sink and an optional systemd journal sink, fanned out
// and decorated with context attributes.
func NewLogger(opts LoggerOptions) (*Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(ResolveLevel(opts.Logging.Level, opts.Verbose))

	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	hopts := &slog.HandlerOptions{Level: level}
	var terminal slog.Handler
	if opts.Logging.Format == config.LogFormatJSON {
		terminal = slog.NewJSONHandler(w, hopts)
	} else {
		terminal = slog.NewTextHandler(w, hopts)
	}
	handlers = append(handlers, terminal)

	if opts.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Logging.File), 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, hopts))
	}

	if opts.Logging.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
			record.AddAttrs(slog.String("error", err.Error()))
			_ = terminal.Handle(context.Background(), record)
		} else {
			handlers = append(handlers, journal)
		}
	}

	var root slog.Handler
	if len(handlers) == 1 {
		root = handlers[0]
	} else {
		root = slogmulti.Fanout(handlers...)
	}

	return &Logger{
		Logger:  slog.New(NewContextHandler(root)),
		Level:   level,
		closers: closers,
	}, nil
}

// ResolveLevel picks the effective level: verbose wins, then
// HOTPATCH_LOG_LEVEL, then the configured level.
func ResolveLevel(configured config.LogLevel, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	if env := strings.TrimSpace(os.Getenv(EnvLogLevel)); env != "" {
		configured = config.NormalizeLogLevel(env)
	}
	switch configured {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}
