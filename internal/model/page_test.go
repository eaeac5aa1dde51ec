package model

import (
	"testing"
	"time"
)

// TestPageResultBucket tests status-code classification.
func TestPageResultBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result PageResult
		want   Bucket
	}{
		{"200 is success", PageResult{StatusCode: 200, Outcome: OutcomeOK}, BucketSuccess},
		{"204 is success", PageResult{StatusCode: 204, Outcome: OutcomeOK}, BucketSuccess},
		{"404 is client error", PageResult{StatusCode: 404, Outcome: OutcomeOK}, BucketClientError},
		{"403 is client error", PageResult{StatusCode: 403, Outcome: OutcomeOK}, BucketClientError},
		{"500 is server error", PageResult{StatusCode: 500, Outcome: OutcomeOK}, BucketServerError},
		{"503 is server error", PageResult{StatusCode: 503, Outcome: OutcomeOK}, BucketServerError},
		{"302 is other", PageResult{StatusCode: 302, Outcome: OutcomeOK}, BucketOther},
		{"101 is other", PageResult{StatusCode: 101, Outcome: OutcomeOK}, BucketOther},
		{"timeout is exception", PageResult{Outcome: OutcomeTimeout}, BucketException},
		{"transport error is exception", PageResult{Outcome: OutcomeError}, BucketException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.result.Bucket(); got != tt.want {
				t.Errorf("Bucket() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestPageResultIsHTML tests content type detection.
func TestPageResultIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		result := PageResult{ContentType: tt.contentType}
		if got := result.IsHTML(); got != tt.want {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

// TestPageResultStatusText tests status display text.
func TestPageResultStatusText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result PageResult
		want   string
	}{
		{"status code", PageResult{StatusCode: 404, Outcome: OutcomeOK}, "404"},
		{"timeout", PageResult{Outcome: OutcomeTimeout}, "TIMEOUT"},
		{"transport error", PageResult{Outcome: OutcomeError}, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.result.StatusText(); got != tt.want {
				t.Errorf("StatusText() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestPageResultResponseTime checks that the duration survives as-is.
func TestPageResultResponseTime(t *testing.T) {
	t.Parallel()

	result := PageResult{ResponseTime: 250 * time.Millisecond}
	if result.ResponseTime.Milliseconds() != 250 {
		t.Errorf("expected 250ms, got %d", result.ResponseTime.Milliseconds())
	}
}
