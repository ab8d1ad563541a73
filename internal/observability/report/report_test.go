package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) SendErrorReport(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReporterCaptureError(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	reporter := NewReporter(Options{
		Logger: discardLogger(),
		Sinks: []SinkRegistration{
			{Name: "capture", Sink: sink},
		},
		Now: func() time.Time { return fixed },
	})

	reporter.CaptureError(apperrors.Unavailable("supabase unreachable"), map[string]string{
		"operation": "initialize",
		"stage":     "profile_sync",
	})
	reporter.Flush()

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.Operation != "initialize" {
		t.Fatalf("expected operation from tags, got %q", ev.Operation)
	}
	if ev.Error != "supabase unreachable" {
		t.Fatalf("unexpected error text: %q", ev.Error)
	}
	if ev.ErrorClass != "unavailable" {
		t.Fatalf("expected error class unavailable, got %q", ev.ErrorClass)
	}
	if ev.Severity != SeverityCritical {
		t.Fatalf("expected critical severity, got %q", ev.Severity)
	}
	if !ev.OccurredAt.Equal(fixed) {
		t.Fatalf("expected fixed timestamp, got %v", ev.OccurredAt)
	}
	if ev.Tags["stage"] != "profile_sync" {
		t.Fatalf("expected stage tag to survive, got %v", ev.Tags)
	}
	if _, exists := ev.Tags["operation"]; exists {
		t.Fatalf("operation tag should be promoted to the event field, got %v", ev.Tags)
	}
}

func TestReporterCaptureErrorNilError(t *testing.T) {
	sink := &captureSink{}
	reporter := NewReporter(Options{
		Logger: discardLogger(),
		Sinks: []SinkRegistration{
			{Name: "capture", Sink: sink},
		},
	})

	reporter.CaptureError(nil, map[string]string{"operation": "initialize"})
	reporter.Flush()

	if len(sink.Events()) != 0 {
		t.Fatal("expected no events for a nil error")
	}
}

func TestReporterSeverities(t *testing.T) {
	tcs := []struct {
		name string
		err  error
		want string
	}{
		{"validation warns", apperrors.Validation("bad email"), SeverityWarning},
		{"unavailable is critical", apperrors.Unavailable("down"), SeverityCritical},
		{"internal is critical", apperrors.Internal("bug"), SeverityCritical},
		{"provider is error", apperrors.Provider("denied"), SeverityError},
		{"plain error is error", errors.New("boom"), SeverityError},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			sink := &captureSink{}
			reporter := NewReporter(Options{
				Logger: discardLogger(),
				Sinks: []SinkRegistration{
					{Name: "capture", Sink: sink},
				},
			})

			reporter.CaptureError(tc.err, nil)
			reporter.Flush()

			events := sink.Events()
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].Severity != tc.want {
				t.Fatalf("severity = %q, want %q", events[0].Severity, tc.want)
			}
		})
	}
}

func TestReporterFanOut(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	reporter := NewReporter(Options{
		Logger: discardLogger(),
		Sinks: []SinkRegistration{
			{Name: "first", Sink: first},
			{Name: "second", Sink: second},
		},
	})

	reporter.Report(context.Background(), Event{Operation: "sign_out", Error: "boom"})

	if len(first.Events()) != 1 || len(second.Events()) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d",
			len(first.Events()), len(second.Events()))
	}
}

func TestReporterReportFillsDefaults(t *testing.T) {
	sink := &captureSink{}
	reporter := NewReporter(Options{
		Logger: discardLogger(),
		Sinks: []SinkRegistration{
			{Name: "capture", Sink: sink},
		},
	})

	reporter.Report(context.Background(), Event{Error: "boom"})

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Severity != SeverityError {
		t.Fatalf("expected severity to default to error, got %q", events[0].Severity)
	}
	if events[0].OccurredAt.IsZero() {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestReporterDisabled(t *testing.T) {
	reporter := NewReporter(Options{Logger: discardLogger()})
	if reporter.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}

	// Must be a no-op rather than a panic.
	reporter.CaptureError(errors.New("boom"), nil)
	reporter.Flush()
}

func TestReporterSkipsNilSinks(t *testing.T) {
	sink := &captureSink{}
	reporter := NewReporter(Options{
		Logger: discardLogger(),
		Sinks: []SinkRegistration{
			{Name: "nil"},
			{Name: "capture", Sink: sink},
		},
	})

	reporter.Report(context.Background(), Event{Error: "boom"})

	if len(sink.Events()) != 1 {
		t.Fatalf("expected surviving sink to receive the event, got %d", len(sink.Events()))
	}
}

func TestReporterLogsSinkErrors(t *testing.T) {
	// Ensure a failing sink does not panic or stop the others.
	sink := &captureSink{}
	reporter := NewReporter(Options{
		Logger: discardLogger(),
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: SinkFunc(func(ctx context.Context, event Event) error {
				return errors.New("boom")
			})},
			{Name: "capture", Sink: sink},
		},
	})

	reporter.CaptureError(errors.New("original"), nil)
	reporter.Flush()

	if len(sink.Events()) != 1 {
		t.Fatalf("expected healthy sink to receive the event, got %d", len(sink.Events()))
	}
}
