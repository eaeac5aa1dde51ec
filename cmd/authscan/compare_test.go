package main

import (
	"testing"
	"time"

	"github.com/aria5/authscan/internal/model"
)

// testReport builds a report with the given error pages.
func testReport(target string, results ...*model.PageResult) *model.ScanReport {
	r := model.NewScanReport(target)
	for _, result := range results {
		r.AddResult(result)
	}
	r.Finalize()
	return r
}

// TestNewCompareCmd tests the compare command creation.
func TestNewCompareCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCompareCmd()

	if cmd.Use != "compare [target-url]" {
		t.Errorf("expected use 'compare [target-url]', got %q", cmd.Use)
	}

	for _, name := range []string{
		"list", "list-targets", "endpoints", "method",
		"with-scan-id", "since", "json",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %q flag", name)
		}
	}
}

// TestCompareReports tests the report comparison logic.
func TestCompareReports(t *testing.T) {
	t.Parallel()

	t.Run("detects new and resolved errors", func(t *testing.T) {
		t.Parallel()

		previous := testReport("http://grc.example.com",
			&model.PageResult{URL: "http://grc.example.com/old-broken", StatusCode: 500, Outcome: model.OutcomeOK},
			&model.PageResult{URL: "http://grc.example.com/missing", StatusCode: 404, Outcome: model.OutcomeOK},
		)
		current := testReport("http://grc.example.com",
			&model.PageResult{URL: "http://grc.example.com/new-broken", StatusCode: 500, Outcome: model.OutcomeOK},
			&model.PageResult{URL: "http://grc.example.com/missing", StatusCode: 404, Outcome: model.OutcomeOK},
		)

		result := compareReports(previous, current)

		if len(result.NewErrors) != 1 {
			t.Fatalf("expected 1 new error, got %d", len(result.NewErrors))
		}
		if result.NewErrors[0].URL != "http://grc.example.com/new-broken" {
			t.Errorf("unexpected new error: %+v", result.NewErrors[0])
		}
		if len(result.ResolvedErrors) != 1 {
			t.Fatalf("expected 1 resolved error, got %d", len(result.ResolvedErrors))
		}
		if result.ResolvedErrors[0].URL != "http://grc.example.com/old-broken" {
			t.Errorf("unexpected resolved error: %+v", result.ResolvedErrors[0])
		}
		if result.UnchangedCount != 1 {
			t.Errorf("expected 1 unchanged error, got %d", result.UnchangedCount)
		}
	})

	t.Run("changed status counts as resolved and new", func(t *testing.T) {
		t.Parallel()

		previous := testReport("http://grc.example.com",
			&model.PageResult{URL: "http://grc.example.com/page", StatusCode: 500, Outcome: model.OutcomeOK},
		)
		current := testReport("http://grc.example.com",
			&model.PageResult{URL: "http://grc.example.com/page", StatusCode: 404, Outcome: model.OutcomeOK},
		)

		result := compareReports(previous, current)

		if len(result.NewErrors) != 1 || len(result.ResolvedErrors) != 1 {
			t.Errorf("expected status change to show as resolved and new, got new=%d resolved=%d",
				len(result.NewErrors), len(result.ResolvedErrors))
		}
	})

	t.Run("extracts metadata", func(t *testing.T) {
		t.Parallel()

		current := testReport("http://grc.example.com",
			&model.PageResult{URL: "http://grc.example.com/ok", StatusCode: 200, Outcome: model.OutcomeOK},
			&model.PageResult{URL: "http://grc.example.com/broken", StatusCode: 500, Outcome: model.OutcomeOK},
			&model.PageResult{URL: "http://grc.example.com/slow", Outcome: model.OutcomeTimeout},
		)
		previous := testReport("http://grc.example.com")

		result := compareReports(previous, current)

		if result.CurrentScan.PagesCrawled != 3 {
			t.Errorf("expected 3 pages crawled, got %d", result.CurrentScan.PagesCrawled)
		}
		if result.CurrentScan.ServerErrorCount != 1 {
			t.Errorf("expected 1 server error, got %d", result.CurrentScan.ServerErrorCount)
		}
		if result.CurrentScan.ExceptionCount != 1 {
			t.Errorf("expected 1 exception, got %d", result.CurrentScan.ExceptionCount)
		}
	})
}

// TestCalculateHealthChange tests the health direction calculation.
func TestCalculateHealthChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous ScanMetadata
		current  ScanMetadata
		want     string
	}{
		{
			name:     "fewer server errors is improved",
			previous: ScanMetadata{ServerErrorCount: 3},
			current:  ScanMetadata{ServerErrorCount: 1},
			want:     healthDirectionImproved,
		},
		{
			name:     "more server errors is worsened",
			previous: ScanMetadata{ServerErrorCount: 0},
			current:  ScanMetadata{ServerErrorCount: 2},
			want:     healthDirectionWorsened,
		},
		{
			name:     "same counts is unchanged",
			previous: ScanMetadata{ServerErrorCount: 1, ClientErrorCount: 4},
			current:  ScanMetadata{ServerErrorCount: 1, ClientErrorCount: 4},
			want:     healthDirectionUnchanged,
		},
		{
			name:     "server error outweighs resolved client errors",
			previous: ScanMetadata{ClientErrorCount: 5},
			current:  ScanMetadata{ServerErrorCount: 1},
			want:     healthDirectionWorsened,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			change := calculateHealthChange(tt.previous, tt.current)
			if change.Direction != tt.want {
				t.Errorf("expected direction %q, got %q", tt.want, change.Direction)
			}
		})
	}
}

// TestFormatDelta tests the delta formatting.
func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{3, "+3"},
		{-2, "-2"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

// TestFormatErrorSummary tests the scan history summary formatting.
func TestFormatErrorSummary(t *testing.T) {
	t.Parallel()

	t.Run("nil summary", func(t *testing.T) {
		t.Parallel()
		if got := formatErrorSummary(nil); got != "N/A" {
			t.Errorf("expected 'N/A', got %q", got)
		}
	})

	t.Run("no errors", func(t *testing.T) {
		t.Parallel()
		summary := &model.Summary{Target: "http://grc.example.com", DateScanned: time.Now()}
		if got := formatErrorSummary(summary); got != noErrorsMessage {
			t.Errorf("expected %q, got %q", noErrorsMessage, got)
		}
	})

	t.Run("mixed errors", func(t *testing.T) {
		t.Parallel()
		summary := &model.Summary{
			ServerErrorCount: 2,
			ClientErrorCount: 5,
			ExceptionCount:   1,
		}
		got := formatErrorSummary(summary)
		if got != "5xx:2 4xx:5 exc:1" {
			t.Errorf("unexpected summary: %q", got)
		}
	})
}

// TestFormatStatus tests error page status formatting.
func TestFormatStatus(t *testing.T) {
	t.Parallel()

	if got := formatStatus(ErrorPage{StatusCode: 500}); got != "500" {
		t.Errorf("expected '500', got %q", got)
	}
	if got := formatStatus(ErrorPage{StatusCode: 0}); got != "EXC" {
		t.Errorf("expected 'EXC', got %q", got)
	}
}
