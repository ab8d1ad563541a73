package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/consorcio10demayo/canalero-auth/internal/observability/report"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(report.Event{
		Operation:  "initialize",
		Error:      "resolve session: network down",
		ErrorClass: "unavailable",
	})

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != report.SeverityError {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "canalero" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "auth" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	summary, _ := payloadSection["summary"].(string)
	if !strings.Contains(summary, "initialize") || !strings.Contains(summary, "network down") {
		t.Fatalf("expected summary to describe the failure, got %s", summary)
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"operation", "error", "error_class"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	dedup, _ := event["dedup_key"].(string)
	if !strings.Contains(dedup, "initialize") || !strings.Contains(dedup, "unavailable") {
		t.Fatalf("expected dedup key to reference operation and class, got %s", dedup)
	}
}

func TestBuildEventMergesTags(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(report.Event{
		Operation:  "sign_out",
		Error:      "boom",
		ErrorClass: "provider_error",
		Severity:   report.SeverityCritical,
		OccurredAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Tags: map[string]string{
			"stage": "profile_sync",
			"error": "must not clobber",
		},
	})

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != report.SeverityCritical {
		t.Fatalf("expected severity to pass through, got %v", payloadSection["severity"])
	}
	if payloadSection["timestamp"] != "2026-03-14T10:00:00Z" {
		t.Fatalf("expected formatted timestamp, got %v", payloadSection["timestamp"])
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}
	if custom["stage"] != "profile_sync" {
		t.Fatalf("expected tag to merge into custom details, got %v", custom["stage"])
	}
	if custom["error"] != "boom" {
		t.Fatalf("expected event field to win over colliding tag, got %v", custom["error"])
	}
}
