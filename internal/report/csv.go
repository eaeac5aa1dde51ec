package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/aria5/authscan/internal/model"
)

// CSVWriter outputs the flat error table for spreadsheet review.
// Each row is one non-2xx page result with its bucket label.
//
// Design decision: The CSV deliberately covers only error buckets; the
// success list can run to hundreds of rows and belongs in the JSON report,
// while the spreadsheet workflow is about triaging failures.
type CSVWriter struct {
	baseWriter

	// includeSuccesses additionally emits 2xx rows.
	includeSuccesses bool
}

// CSVWriterOption configures a CSVWriter.
type CSVWriterOption func(*CSVWriter)

// WithSuccessRows includes 2xx results in the table.
func WithSuccessRows() CSVWriterOption {
	return func(w *CSVWriter) {
		w.includeSuccesses = true
	}
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer, opts ...CSVWriterOption) *CSVWriter {
	w := &CSVWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// csvHeader is the fixed column layout of the error table.
var csvHeader = []string{"URL", "Status Code", "Bucket", "Content Type", "Response Time"}

// Write outputs the error table in CSV format.
// Byte counts are not tracked by encoding/csv, so Write returns the
// number of rows written instead.
func (w *CSVWriter) Write(report *model.ScanReport) (int, error) {
	cw := csv.NewWriter(w.output)

	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}

	results := report.ErrorResults()
	if w.includeSuccesses {
		results = report.Results()
	}

	rows := 0
	for _, r := range results {
		row := []string{
			r.URL,
			r.StatusText(),
			string(r.Bucket()),
			r.ContentType,
			fmt.Sprintf("%.3f", r.ResponseTime.Seconds()),
		}
		if err := cw.Write(row); err != nil {
			return rows, err
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}

// WriteSummary outputs the summary counts as key/value rows.
func (w *CSVWriter) WriteSummary(summary *model.Summary) (int, error) {
	cw := csv.NewWriter(w.output)

	rows := [][]string{
		{"Metric", "Value"},
		{"Target", summary.Target},
		{"Pages Crawled", strconv.Itoa(summary.PagesCrawled)},
		{"URLs Discovered", strconv.Itoa(summary.URLsDiscovered)},
		{"Successful (2xx)", strconv.Itoa(summary.SuccessCount)},
		{"Client Errors (4xx)", strconv.Itoa(summary.ClientErrorCount)},
		{"Server Errors (5xx)", strconv.Itoa(summary.ServerErrorCount)},
		{"Other", strconv.Itoa(summary.OtherCount)},
		{"Exceptions", strconv.Itoa(summary.ExceptionCount)},
		{"Auth Failures", strconv.Itoa(summary.AuthFailureCount)},
	}

	count := 0
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return count, err
		}
		count++
	}

	cw.Flush()
	return count, cw.Error()
}
