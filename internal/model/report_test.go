package model

import (
	"errors"
	"testing"
	"time"
)

// TestScanReportAddResult tests bucket classification on add.
func TestScanReportAddResult(t *testing.T) {
	t.Parallel()

	report := NewScanReport("http://grc.example.com")
	report.AddResult(&PageResult{URL: "/ok", StatusCode: 200, Outcome: OutcomeOK})
	report.AddResult(&PageResult{URL: "/missing", StatusCode: 404, Outcome: OutcomeOK})
	report.AddResult(&PageResult{URL: "/broken", StatusCode: 500, Outcome: OutcomeOK})
	report.AddResult(&PageResult{URL: "/redirect", StatusCode: 302, Outcome: OutcomeOK})
	report.AddResult(&PageResult{URL: "/slow", Outcome: OutcomeTimeout})

	if len(report.Successful) != 1 {
		t.Errorf("expected 1 successful, got %d", len(report.Successful))
	}
	if len(report.ClientErrors) != 1 {
		t.Errorf("expected 1 client error, got %d", len(report.ClientErrors))
	}
	if len(report.ServerErrors) != 1 {
		t.Errorf("expected 1 server error, got %d", len(report.ServerErrors))
	}
	if len(report.Other) != 1 {
		t.Errorf("expected 1 other, got %d", len(report.Other))
	}
	if len(report.Exceptions) != 1 {
		t.Errorf("expected 1 exception, got %d", len(report.Exceptions))
	}

	if report.PagesCrawled() != 5 {
		t.Errorf("expected 5 pages crawled, got %d", report.PagesCrawled())
	}
	if report.ErrorPages() != 4 {
		t.Errorf("expected 4 error pages, got %d", report.ErrorPages())
	}
}

// TestScanReportResults tests the flattened result views.
func TestScanReportResults(t *testing.T) {
	t.Parallel()

	report := NewScanReport("http://grc.example.com")
	report.AddResult(&PageResult{URL: "/broken", StatusCode: 500, Outcome: OutcomeOK})
	report.AddResult(&PageResult{URL: "/ok", StatusCode: 200, Outcome: OutcomeOK})
	report.AddResult(&PageResult{URL: "/missing", StatusCode: 404, Outcome: OutcomeOK})

	results := report.Results()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// Bucket order is stable: 2xx, 4xx, 5xx, other, exceptions
	if results[0].URL != "/ok" || results[1].URL != "/missing" || results[2].URL != "/broken" {
		t.Errorf("unexpected result order: %s, %s, %s", results[0].URL, results[1].URL, results[2].URL)
	}

	errorResults := report.ErrorResults()
	if len(errorResults) != 2 {
		t.Fatalf("expected 2 error results, got %d", len(errorResults))
	}
	if errorResults[0].URL != "/missing" || errorResults[1].URL != "/broken" {
		t.Errorf("unexpected error result order: %s, %s", errorResults[0].URL, errorResults[1].URL)
	}
}

// TestScanReportAuthFailures tests authentication failure recording.
func TestScanReportAuthFailures(t *testing.T) {
	t.Parallel()

	report := NewScanReport("http://grc.example.com")
	report.AddAuthFailure(AuthFailure{
		URL:        "http://grc.example.com/risks",
		StatusCode: 302,
		Timestamp:  time.Now(),
		Recovered:  true,
	})

	if len(report.AuthFailures) != 1 {
		t.Fatalf("expected 1 auth failure, got %d", len(report.AuthFailures))
	}
	if !report.AuthFailures[0].Recovered {
		t.Error("expected failure to be marked recovered")
	}
}

// TestScanReportFinalize tests summary derivation.
func TestScanReportFinalize(t *testing.T) {
	t.Parallel()

	t.Run("derives counts", func(t *testing.T) {
		t.Parallel()

		report := NewScanReport("http://grc.example.com")
		report.AddResult(&PageResult{URL: "/ok", StatusCode: 200, Outcome: OutcomeOK})
		report.AddResult(&PageResult{URL: "/broken", StatusCode: 500, Outcome: OutcomeOK})
		report.AddAuthFailure(AuthFailure{URL: "/risks", StatusCode: 302})
		report.DiscoveredURLs = []string{"/ok", "/broken", "/never-fetched"}

		report.Finalize()

		if report.Summary == nil {
			t.Fatal("expected summary after Finalize")
		}
		if report.Summary.PagesCrawled != 2 {
			t.Errorf("expected 2 pages crawled, got %d", report.Summary.PagesCrawled)
		}
		if report.Summary.URLsDiscovered != 3 {
			t.Errorf("expected 3 discovered URLs, got %d", report.Summary.URLsDiscovered)
		}
		if report.Summary.ServerErrorCount != 1 {
			t.Errorf("expected 1 server error, got %d", report.Summary.ServerErrorCount)
		}
		if report.Summary.AuthFailureCount != 1 {
			t.Errorf("expected 1 auth failure, got %d", report.Summary.AuthFailureCount)
		}
	})

	t.Run("fills error message", func(t *testing.T) {
		t.Parallel()

		report := NewScanReport("http://grc.example.com")
		report.Error = errors.New("scan aborted")

		report.Finalize()

		if report.ErrorMessage != "scan aborted" {
			t.Errorf("expected error message, got %q", report.ErrorMessage)
		}
		if report.Summary.Error != "scan aborted" {
			t.Errorf("expected summary error, got %q", report.Summary.Error)
		}
	})

	t.Run("propagates interrupted flag", func(t *testing.T) {
		t.Parallel()

		report := NewScanReport("http://grc.example.com")
		report.Interrupted = true

		report.Finalize()

		if !report.Summary.Interrupted {
			t.Error("expected summary to carry the interrupted flag")
		}
	})
}
