package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// LogOptions selects the log destinations.
type LogOptions struct {
	// Console receives human-readable output. Nil disables it; it is also
	// skipped when running as a systemd service, since the journal already
	// captures it.
	Console io.Writer
	// File is opened in append mode. Empty disables it.
	File string
	// Level is debug, info, warn or error.
	Level string
	// Format is text or json.
	Format string
	// Journal is auto, on or off. Auto enables the journal under systemd.
	Journal string
}

// Logs owns the host logger and its log file.
type Logs struct {
	Logger *slog.Logger
	level  *slog.LevelVar
	file   *os.File
}

// NewLogs builds the host logger, fanning records out to every configured
// destination.
func NewLogs(opts LogOptions) (*Logs, error) {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil && opts.Level != "" {
		return nil, fmt.Errorf("log level: %w", err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	newHandler := func(w io.Writer) slog.Handler {
		if strings.EqualFold(opts.Format, "json") {
			return slog.NewJSONHandler(w, handlerOpts)
		}
		return slog.NewTextHandler(w, handlerOpts)
	}

	logs := &Logs{level: level}
	var handlers []slog.Handler

	service := isSystemdService()

	// local
	var consoleHandler slog.Handler
	if opts.Console != nil && !service {
		consoleHandler = newHandler(opts.Console)
		handlers = append(handlers, consoleHandler)
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logs.file = f
		handlers = append(handlers, newHandler(f))
	}

	// systemd journal
	if wantJournal(opts.Journal, service) {
		journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
			Level:        level,
			ReplaceGroup: toJournalKey,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			if consoleHandler != nil {
				record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
				record.Add("error", err)
				_ = consoleHandler.Handle(context.Background(), record)
			}
		} else {
			handlers = append(handlers, journalHandler)
		}
	}

	logs.Logger = slog.New(slogmulti.Fanout(handlers...))
	return logs, nil
}

// SetLevel changes the minimum level of every destination.
func (l *Logs) SetLevel(level slog.Level) { l.level.Set(level) }

// Flush commits the log file to disk.
func (l *Logs) Flush() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close closes the log file.
func (l *Logs) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func wantJournal(mode string, service bool) bool {
	switch strings.ToLower(mode) {
	case "on":
		return true
	case "off":
		return false
	default:
		return service
	}
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
