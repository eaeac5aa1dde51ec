// Package report serializes scan results: a structured JSON report, a
// flat CSV error table for spreadsheet review, a Markdown summary, and a
// human-readable console summary.
package report
