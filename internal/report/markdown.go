package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/aria5/authscan/internal/model"
)

// maxTableRows limits per-bucket error tables so the report stays readable.
const maxTableRows = 10

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent,
// type-safe markdown generation with tables, GFM alerts, and mermaid
// pie charts.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	if report.Summary == nil {
		report.Summary = model.NewSummary(report)
	}

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report.Summary)
	w.writeErrors(md, report)
	w.writeAuthFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs only the summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Authenticated Scan Summary")
	md.PlainText("")
	w.writeSummary(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScanReport) {
	md.H1("Authenticated Scan Report")
	md.PlainText("")

	user := report.AuthenticatedAs
	if user == "" {
		user = "-"
	} else if report.AuthenticatedRole != "" {
		user += " (" + report.AuthenticatedRole + ")"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
			{"Authenticated As", user},
			{"Pages Crawled", strconv.Itoa(report.PagesCrawled())},
			{"URLs Discovered", strconv.Itoa(len(report.DiscoveredURLs))},
			{"Status", w.statusText(report)},
		},
	})
	md.PlainText("")
}

// statusText returns the status text based on report state.
func (w *MarkdownWriter) statusText(report *model.ScanReport) string {
	if report.Interrupted {
		return "⚠️ Interrupted (partial results)"
	}
	if report.ErrorMessage != "" {
		return "❌ Error - " + report.ErrorMessage
	}
	return "✅ Complete"
}

// writeSummary writes the status bucket summary with a pie chart and an
// alert scaled to the worst bucket present.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Status Code Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Bucket", "Count"},
		Rows: [][]string{
			{"✅ Successful (2xx)", strconv.Itoa(summary.SuccessCount)},
			{"⚠️ Client Errors (4xx)", strconv.Itoa(summary.ClientErrorCount)},
			{"❌ Server Errors (5xx)", strconv.Itoa(summary.ServerErrorCount)},
			{"ℹ️ Other", strconv.Itoa(summary.OtherCount)},
			{"💥 Exceptions", strconv.Itoa(summary.ExceptionCount)},
			{"🔄 Auth Failures", strconv.Itoa(summary.AuthFailureCount)},
		},
	})
	md.PlainText("")

	if summary.PagesCrawled > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of the bucket distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Status Code Distribution"),
		piechart.WithShowData(true),
	)

	if summary.SuccessCount > 0 {
		chart.LabelAndIntValue("2xx", uint64(summary.SuccessCount))
	}
	if summary.ClientErrorCount > 0 {
		chart.LabelAndIntValue("4xx", uint64(summary.ClientErrorCount))
	}
	if summary.ServerErrorCount > 0 {
		chart.LabelAndIntValue("5xx", uint64(summary.ServerErrorCount))
	}
	if summary.OtherCount > 0 {
		chart.LabelAndIntValue("other", uint64(summary.OtherCount))
	}
	if summary.ExceptionCount > 0 {
		chart.LabelAndIntValue("exceptions", uint64(summary.ExceptionCount))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert scaled to the worst result bucket.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.Summary) {
	switch {
	case summary.ServerErrorCount > 0:
		md.Cautionf(
			"%d server error(s) detected. 5xx responses indicate application failures that need immediate attention.",
			summary.ServerErrorCount,
		)
	case summary.ClientErrorCount > 0:
		md.Warningf(
			"%d client error(s) detected. 4xx responses may indicate missing endpoints or broken links.",
			summary.ClientErrorCount,
		)
	case summary.ExceptionCount > 0:
		md.Importantf(
			"%d request(s) timed out or failed at transport level.",
			summary.ExceptionCount,
		)
	default:
		md.Tip("All crawled pages responded successfully.")
	}
	md.PlainText("")
}

// writeErrors writes per-bucket error tables.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *model.ScanReport) {
	if report.ErrorPages() == 0 {
		md.H2("Errors")
		md.PlainText("")
		md.PlainText("No error responses recorded.")
		md.PlainText("")
		return
	}

	md.H2("Errors")
	md.PlainText("")

	buckets := []struct {
		header  string
		results []*model.PageResult
	}{
		{"### ❌ Server Errors (5xx)", report.ServerErrors},
		{"### ⚠️ Client Errors (4xx)", report.ClientErrors},
		{"### ℹ️ Other Statuses", report.Other},
		{"### 💥 Exceptions", report.Exceptions},
	}

	for _, bucket := range buckets {
		if len(bucket.results) == 0 {
			continue
		}
		md.PlainText(bucket.header)
		md.PlainText("")
		w.writeErrorTable(md, bucket.results)
	}
}

// writeErrorTable writes a table of error results, capped at maxTableRows.
func (w *MarkdownWriter) writeErrorTable(md *markdown.Markdown, results []*model.PageResult) {
	limit := len(results)
	if limit > maxTableRows {
		limit = maxTableRows
	}

	rows := make([][]string, 0, limit)
	for _, r := range results[:limit] {
		detail := r.ContentType
		if r.Error != "" {
			detail = truncateString(r.Error, 60)
		}
		rows = append(rows, []string{
			truncateString(r.URL, 70),
			r.StatusText(),
			detail,
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Detail"},
		Rows:   rows,
	})
	if len(results) > limit {
		md.PlainTextf("*... and %d more*", len(results)-limit)
	}
	md.PlainText("")
}

// writeAuthFailures writes the authentication failure table.
func (w *MarkdownWriter) writeAuthFailures(md *markdown.Markdown, report *model.ScanReport) {
	if len(report.AuthFailures) == 0 {
		return
	}

	md.H2("Authentication Failures")
	md.PlainText("")

	rows := make([][]string, 0, len(report.AuthFailures))
	for _, f := range report.AuthFailures {
		recovered := "no"
		if f.Recovered {
			recovered = "yes"
		}
		rows = append(rows, []string{
			truncateString(f.URL, 70),
			strconv.Itoa(f.StatusCode),
			f.Timestamp.Format("15:04:05"),
			recovered,
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Time", "Recovered"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by authscan*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
