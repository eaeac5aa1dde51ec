package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/aria5/authscan/internal/model"
)

// maxListedPages limits per-bucket listings in the console output.
const maxListedPages = 10

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no results are shown.
	showEmpty bool

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format.
// It generates a Summary from the ScanReport if not already present.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	if report.Summary == nil {
		report.Summary = model.NewSummary(report)
	}

	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report.Summary)
	w.writeErrors(&sb, report)
	w.writeAuthFailures(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs only the summary in human-readable format.
func (w *SimpleWriter) WriteSummary(summary *model.Summary) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                    AUTHENTICATED SCAN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
	w.writeSummary(&sb, summary)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                    AUTHENTICATED SCAN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Target:          %s\n", report.Target))
	sb.WriteString(fmt.Sprintf("Scan Date:       %s\n", report.DateScanned.Format("2006-01-02 15:04:05 MST")))
	if report.AuthenticatedAs != "" {
		if report.AuthenticatedRole != "" {
			sb.WriteString(fmt.Sprintf("Authenticated:   %s (%s)\n", report.AuthenticatedAs, report.AuthenticatedRole))
		} else {
			sb.WriteString(fmt.Sprintf("Authenticated:   %s\n", report.AuthenticatedAs))
		}
	}
	sb.WriteString(fmt.Sprintf("Pages Crawled:   %d\n", report.PagesCrawled()))
	sb.WriteString(fmt.Sprintf("URLs Discovered: %d\n", len(report.DiscoveredURLs)))

	if report.Interrupted {
		sb.WriteString("Status:          INTERRUPTED (partial results)\n")
	} else if report.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Status:          ERROR - %s\n", report.ErrorMessage))
	} else {
		sb.WriteString("Status:          Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the status code summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("STATUS CODE SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  SUCCESSFUL (2xx):    %d\n", summary.SuccessCount))
	sb.WriteString(fmt.Sprintf("  CLIENT ERRORS (4xx): %d\n", summary.ClientErrorCount))
	sb.WriteString(fmt.Sprintf("  SERVER ERRORS (5xx): %d\n", summary.ServerErrorCount))
	sb.WriteString(fmt.Sprintf("  OTHER:               %d\n", summary.OtherCount))
	sb.WriteString(fmt.Sprintf("  EXCEPTIONS:          %d\n", summary.ExceptionCount))
	sb.WriteString(fmt.Sprintf("  AUTH FAILURES:       %d\n", summary.AuthFailureCount))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  TOTAL:               %d pages\n", summary.PagesCrawled))
	sb.WriteString("\n")
}

// writeErrors writes error results grouped by bucket, worst first.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.ScanReport) {
	if report.ErrorPages() == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ERRORS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	buckets := []struct {
		indicator string
		label     string
		results   []*model.PageResult
	}{
		{"!!!", "SERVER ERRORS (5xx)", report.ServerErrors},
		{"!!", "CLIENT ERRORS (4xx)", report.ClientErrors},
		{"!", "EXCEPTIONS", report.Exceptions},
		{"-", "OTHER", report.Other},
	}

	for _, bucket := range buckets {
		if len(bucket.results) == 0 && !w.showEmpty {
			continue
		}
		w.writeBucket(sb, bucket.indicator, bucket.label, bucket.results)
	}
}

// writeBucket writes the results of one status bucket.
func (w *SimpleWriter) writeBucket(sb *strings.Builder, indicator, label string, results []*model.PageResult) {
	sb.WriteString(fmt.Sprintf("[%s] %s\n", indicator, label))

	if len(results) == 0 {
		sb.WriteString("  No results\n\n")
		return
	}

	limit := len(results)
	if limit > maxListedPages && !w.verbose {
		limit = maxListedPages
	}

	for _, r := range results[:limit] {
		sb.WriteString(fmt.Sprintf("  * %s - %s\n", r.StatusText(), r.URL))
		if w.verbose && r.Error != "" {
			sb.WriteString(fmt.Sprintf("    Error: %s\n", r.Error))
		}
		if w.verbose && r.Title != "" {
			sb.WriteString(fmt.Sprintf("    Title: %s\n", r.Title))
		}
	}
	if len(results) > limit {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(results)-limit))
	}
	sb.WriteString("\n")
}

// writeAuthFailures writes the authentication failure section.
func (w *SimpleWriter) writeAuthFailures(sb *strings.Builder, report *model.ScanReport) {
	if len(report.AuthFailures) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("AUTHENTICATION FAILURES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.AuthFailures) == 0 {
		sb.WriteString("  No authentication failures\n")
	} else {
		for _, f := range report.AuthFailures {
			recovered := "session NOT recovered"
			if f.Recovered {
				recovered = "re-authenticated"
			}
			sb.WriteString(fmt.Sprintf("  [%s] %d at %s (%s)\n",
				f.Timestamp.Format("15:04:05"), f.StatusCode, f.URL, recovered))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by authscan\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
