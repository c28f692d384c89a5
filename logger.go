package forcelayout

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/forcelayout/compute/cpu"
	"github.com/gogpu/forcelayout/internal/sim"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

// loggerSinks receive the logger on every SetLogger. Device packages that
// are compiled in conditionally add themselves from init.
var (
	sinksMu     sync.Mutex
	loggerSinks = []func(*slog.Logger){cpu.SetLogger, sim.SetLogger}
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for forcelayout and its sub-packages.
// By default nothing is logged. Pass nil to restore silence.
//
// SetLogger is safe for concurrent use.
//
// Log levels used by forcelayout:
//   - [slog.LevelDebug]: buffer sizes, phase progress, launch geometry
//   - [slog.LevelInfo]: device bring-up, pipeline compilation
//   - [slog.LevelWarn]: adapter fallback, resource release errors
//
// Example:
//
//	forcelayout.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinksMu.Lock()
	sinks := loggerSinks
	sinksMu.Unlock()
	for _, set := range sinks {
		set(l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// addLoggerSink registers set and hands it the current logger.
func addLoggerSink(set func(*slog.Logger)) {
	sinksMu.Lock()
	loggerSinks = append(loggerSinks, set)
	sinksMu.Unlock()
	if l := Logger(); l != nil {
		set(l)
	}
}

func slogger() *slog.Logger { return loggerPtr.Load() }
