// Package report delivers auth failure reports to external channels such as
// Slack webhooks and PagerDuty. The Reporter satisfies ports.ErrorReporter and
// fans captured errors out to every registered sink.
package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	obserrors "github.com/consorcio10demayo/canalero-auth/internal/observability/errors"
)

// Severity constants recognised by downstream sinks. They match the levels
// accepted by the PagerDuty Events API.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
)

// Event captures the canonical data we emit for an auth failure report.
type Event struct {
	Operation  string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Tags       map[string]string
}

// Sink describes a destination capable of consuming failure reports.
type Sink interface {
	SendErrorReport(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, event Event) error

// SendErrorReport implements the Sink interface.
func (f SinkFunc) SendErrorReport(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink Sink
}

// Options configures the reporter.
type Options struct {
	Logger  *slog.Logger
	Sinks   []SinkRegistration
	Timeout time.Duration    // per-delivery deadline, default 10s
	Now     func() time.Time // test hook
}

// Reporter dispatches failure events to all registered sinks. CaptureError
// runs on auth hot paths, so delivery happens on a background goroutine with
// its own deadline; Flush waits for in-flight deliveries.
type Reporter struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	now     func() time.Time

	inflight sync.WaitGroup
}

// NewReporter constructs a reporter. Entries with a nil sink are dropped.
func NewReporter(opts Options) *Reporter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "error_reporter")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Reporter{
		logger:  logger,
		sinks:   sinks,
		timeout: timeout,
		now:     now,
	}
}

// CaptureError implements ports.ErrorReporter. The "operation" tag becomes the
// event operation; remaining tags travel with the event. Delivery is
// asynchronous and never blocks the caller.
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if err == nil || len(r.sinks) == 0 {
		return
	}

	event := Event{
		Operation:  tags["operation"],
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		Severity:   severityFor(err),
		OccurredAt: r.now().UTC(),
	}
	if len(tags) > 0 {
		event.Tags = make(map[string]string, len(tags))
		for k, v := range tags {
			if k == "operation" {
				continue
			}
			event.Tags[k] = v
		}
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.Report(ctx, event)
	}()
}

// Report fan-outs the event to all sinks and waits for them to finish.
func (r *Reporter) Report(ctx context.Context, event Event) {
	if len(r.sinks) == 0 {
		return
	}

	if event.Severity == "" {
		event.Severity = SeverityError
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}

	var wg sync.WaitGroup
	for _, entry := range r.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendErrorReport(ctx, event); err != nil {
				r.logger.Error("error report delivery failed",
					"sink", entry.Name,
					"operation", event.Operation,
					"error_class", event.ErrorClass,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Flush blocks until all background deliveries started by CaptureError have
// completed.
func (r *Reporter) Flush() {
	r.inflight.Wait()
}

// Enabled reports whether the reporter has any active sinks.
func (r *Reporter) Enabled() bool {
	return len(r.sinks) > 0
}

func severityFor(err error) string {
	switch {
	case apperrors.IsValidation(err), apperrors.IsCanceled(err):
		return SeverityWarning
	case apperrors.IsUnavailable(err), apperrors.IsInternal(err), apperrors.IsTimeout(err):
		return SeverityCritical
	default:
		return SeverityError
	}
}
