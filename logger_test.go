package forcelayout

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/forcelayout/compute"
	"github.com/gogpu/forcelayout/compute/computetest"
	"github.com/gogpu/forcelayout/graph"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("key", "val")}).(nopHandler); !ok {
		t.Error("WithAttrs did not return nopHandler")
	}
	if _, ok := h.WithGroup("group").(nopHandler); !ok {
		t.Error("WithGroup did not return nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)
	if Logger() != custom {
		t.Fatal("Logger() did not return the custom logger set via SetLogger")
	}

	dev := computetest.NewDevice(compute.DeviceTypeCPU, 4)
	l, err := New(dev, WithIterations(1))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	g := graph.New()
	_ = g.AddNode(&graph.Node{ID: "a"})
	_ = g.AddNode(&graph.Node{ID: "b", X: 1})
	_ = g.AddEdge(&graph.Edge{Source: "a", Target: "b"})
	if _, err := l.Run(context.Background(), g); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"layout ready", "partition done", "run done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) should set nop logger, not nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

func TestSetLoggerPropagatesToSinks(t *testing.T) {
	orig := Logger()
	sinksMu.Lock()
	origSinks := loggerSinks
	sinksMu.Unlock()
	t.Cleanup(func() {
		sinksMu.Lock()
		loggerSinks = origSinks
		sinksMu.Unlock()
		SetLogger(orig)
	})

	var got *slog.Logger
	addLoggerSink(func(l *slog.Logger) { got = l })
	if got != orig {
		t.Error("addLoggerSink did not hand over the current logger")
	}

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)
	if got != custom {
		t.Error("SetLogger did not propagate to the registered sink")
	}
}

func TestSetLoggerConcurrent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			} else {
				_ = Logger()
			}
		}()
	}
	wg.Wait()
}
