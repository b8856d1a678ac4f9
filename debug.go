package spanstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// DebugLogger provides debug logging for store operations.
// When enabled, it logs transactions, subscription lifecycle, resets
// and watcher events. A nil *DebugLogger is valid and logs nothing.
type DebugLogger struct {
	mu      sync.Mutex
	enabled bool
	logger  *slog.Logger
	closer  io.Closer
}

// NewDebugLogger creates a new debug logger.
// If logPath is empty, logs to stderr.
func NewDebugLogger(enabled bool, logPath string) (*DebugLogger, error) {
	var writer io.Writer = colorable.NewColorable(os.Stderr)
	noColor := !isatty.IsTerminal(os.Stderr.Fd())

	l := &DebugLogger{enabled: enabled}
	if enabled && logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		writer = f
		noColor = true
		l.closer = f
	}

	l.logger = newSlogger(writer, noColor)
	return l, nil
}

// newDebugLoggerTo logs to w without color. Used by tests.
func newDebugLoggerTo(w io.Writer) *DebugLogger {
	return &DebugLogger{enabled: true, logger: newSlogger(w, true)}
}

func newSlogger(w io.Writer, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})).With("component", "spanstore")
}

// Close closes the debug logger if it's writing to a file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}
	return nil
}

// Log writes a debug message if logging is enabled.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// LogTx logs a committed or aborted write transaction.
func (l *DebugLogger) LogTx(op string, changes int, elapsed time.Duration, err error) {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.logger.Warn("tx aborted", "op", op, "err", err, "elapsed", elapsed)
		return
	}
	l.logger.Debug("tx committed", "op", op, "changes", changes, "elapsed", elapsed)
}

// LogSubscription logs subscription lifecycle events.
func (l *DebugLogger) LogSubscription(event string, id uint64, query string) {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Debug("subscription "+event, "sub", id, "query", query)
}

// LogError logs an error with full details.
func (l *DebugLogger) LogError(operation string, err error) {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Error(operation, "err", err)
}

// gooseLogger routes migration output into the debug logger.
type gooseLogger struct {
	l *DebugLogger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.l.Log("migrate: "+format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.l.LogError("migrate", fmt.Errorf(format, v...))
}
