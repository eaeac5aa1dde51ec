package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aria5/authscan/internal/config"
	"github.com/aria5/authscan/internal/database"
	"github.com/aria5/authscan/internal/model"
	"github.com/spf13/cobra"
)

// Constants for health direction and summary messages.
const (
	healthDirectionWorsened  = "worsened"
	healthDirectionImproved  = "improved"
	healthDirectionUnchanged = "unchanged"
	noErrorsMessage          = "No errors"
)

// NewCompareCmd creates the compare command.
// This command compares scan results with historical data stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [target-url]",
		Short: "Compare scan results with historical data",
		Long: `Compare displays differences between the current and previous scan results.

This command retrieves historical scan data from the database and shows:
- Error pages that appeared since the last scan
- Error pages that have been resolved
- Changes in the status code counts

The comparison requires at least two scans in the database for the specified
target. Use 'authscan scan' to perform scans and save results.

Examples:
  # Compare latest two scans for a target
  authscan compare http://grc.example.com

  # List all scan history for a target
  authscan compare --list http://grc.example.com

  # Compare with a specific historical scan by ID
  authscan compare --with-scan-id 5 http://grc.example.com

  # Compare scans since a specific date
  authscan compare --since "2026-01-01" http://grc.example.com

  # Output comparison in JSON format
  authscan compare --json http://grc.example.com

  # List all scanned targets in the database
  authscan compare --list-targets

  # List the API endpoints recorded for a target
  authscan compare --endpoints http://grc.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List scan history for the specified target")
	cmd.Flags().BoolP("list-targets", "L", false,
		"List all scanned targets in the database")
	cmd.Flags().BoolP("endpoints", "e", false,
		"List the API endpoints recorded for the target")
	cmd.Flags().StringP("method", "m", "",
		"Filter listed endpoints by HTTP method (use with --endpoints)")

	// Comparison target flags
	cmd.Flags().Int64P("with-scan-id", "i", 0,
		"Compare with a specific scan by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first scan after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	// Handle --list-targets flag first (requires database but no target)
	listTargets, err := cmd.Flags().GetBool("list-targets")
	if err != nil {
		return err
	}

	// Validate arguments before opening database (unless --list-targets)
	var target string
	if !listTargets {
		if len(args) == 0 {
			return errors.New("target URL is required (use --list-targets to see available targets)")
		}

		target, err = config.NormalizeTarget(args[0])
		if err != nil {
			return err
		}
	}

	// Use XDG data directory for database
	dbDir := config.XDGDataDir()

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		return fmt.Errorf("failed to open database (scan a target first): %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if listTargets {
		return listScannedTargets(ctx, db)
	}

	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listScanHistory(ctx, db, target)
	}

	listEndpointsFlag, err := cmd.Flags().GetBool("endpoints")
	if err != nil {
		return err
	}
	if listEndpointsFlag {
		method, err := cmd.Flags().GetString("method")
		if err != nil {
			return err
		}
		return listEndpoints(ctx, db, target, method)
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	withScanID, err := cmd.Flags().GetInt64("with-scan-id")
	if err != nil {
		return err
	}
	sinceDate, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}

	return runComparison(ctx, db, target, withScanID, sinceDate, jsonOutput)
}

// listScannedTargets lists all targets that have scan records in the database.
func listScannedTargets(ctx context.Context, db *database.ScanDB) error {
	targets, err := db.ListScannedTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}

	if len(targets) == 0 {
		fmt.Println("No scanned targets found in the database.")
		fmt.Println("\nUse 'authscan scan <url>' to scan a target.")
		return nil
	}

	fmt.Printf("Scanned targets (%d):\n\n", len(targets))
	for _, t := range targets {
		fmt.Printf("  • %s\n", t)
	}
	fmt.Println("\nUse 'authscan compare --list <url>' to see scan history for a target.")

	return nil
}

// listScanHistory lists all scan records for a specific target.
func listScanHistory(ctx context.Context, db *database.ScanDB, target string) error {
	reports, err := db.GetScanHistoryWithMetadata(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}

	if len(reports) == 0 {
		fmt.Printf("No scan history found for %s\n", target)
		fmt.Println("\nUse 'authscan scan' to scan this target.")
		return nil
	}

	fmt.Printf("Scan history for %s (%d scans):\n\n", target, len(reports))
	fmt.Printf("  %-6s  %-20s  %s\n", "ID", "Date", "Error Summary")
	fmt.Println("  " + strings.Repeat("-", 60))

	for _, meta := range reports {
		fmt.Printf("  %-6d  %-20s  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			formatErrorSummary(meta.Summary),
		)
	}

	fmt.Println("\nUse 'authscan compare <url>' to compare the latest two scans.")
	fmt.Println("Use 'authscan compare --with-scan-id <id> <url>' to compare with a specific scan.")

	return nil
}

// listEndpoints lists the API endpoints recorded for a target, optionally
// filtered by HTTP method. Endpoints are collected from forms and htmx
// attributes during the crawl.
func listEndpoints(ctx context.Context, db *database.ScanDB, target, method string) error {
	endpoints, err := db.QueryEndpoints(ctx, target, strings.ToUpper(method))
	if err != nil {
		return fmt.Errorf("failed to query endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		fmt.Printf("No endpoints recorded for %s\n", target)
		fmt.Println("\nUse 'authscan scan' to scan this target.")
		return nil
	}

	fmt.Printf("Endpoints discovered on %s (%d):\n\n", target, len(endpoints))
	fmt.Printf("  %-7s  %-40s  %s\n", "Method", "Endpoint", "Source")
	fmt.Println("  " + strings.Repeat("-", 70))
	for _, ep := range endpoints {
		fmt.Printf("  %-7s  %-40s  %s\n", ep.Method, ep.Endpoint, ep.SourceURL)
	}

	return nil
}

// formatErrorSummary formats the summary counts into a human-readable string.
func formatErrorSummary(summary *model.Summary) string {
	if summary == nil {
		return "N/A"
	}

	var parts []string
	if summary.ServerErrorCount > 0 {
		parts = append(parts, fmt.Sprintf("5xx:%d", summary.ServerErrorCount))
	}
	if summary.ClientErrorCount > 0 {
		parts = append(parts, fmt.Sprintf("4xx:%d", summary.ClientErrorCount))
	}
	if summary.ExceptionCount > 0 {
		parts = append(parts, fmt.Sprintf("exc:%d", summary.ExceptionCount))
	}
	if summary.AuthFailureCount > 0 {
		parts = append(parts, fmt.Sprintf("auth:%d", summary.AuthFailureCount))
	}

	if len(parts) == 0 {
		return noErrorsMessage
	}
	return strings.Join(parts, " ")
}

// runComparison performs the actual comparison between scan reports.
func runComparison(ctx context.Context, db *database.ScanDB, target string, withScanID int64, sinceDate string, jsonOutput bool) error {
	reports, err := db.GetScanHistory(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}

	if len(reports) == 0 {
		return fmt.Errorf("no scan history found for %s", target)
	}

	if len(reports) < 2 && withScanID == 0 && sinceDate == "" {
		return fmt.Errorf("at least 2 scans are required for comparison (found %d)", len(reports))
	}

	// Latest report is always the current one
	currentReport := reports[0]
	var previousReport *model.ScanReport

	switch {
	case withScanID > 0:
		previousReport, err = db.GetScanReportByID(ctx, withScanID)
		if err != nil {
			return fmt.Errorf("failed to get scan with ID %d: %w", withScanID, err)
		}
		if previousReport == nil {
			return fmt.Errorf("scan with ID %d not found", withScanID)
		}
		if previousReport.Target != target {
			return fmt.Errorf("scan ID %d belongs to %s, not %s", withScanID, previousReport.Target, target)
		}
	case sinceDate != "":
		parsedDate, err := time.Parse("2006-01-02", sinceDate)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Reports are sorted newest first, so iterate in reverse to find
		// the oldest report at or after the date
		for i := len(reports) - 1; i >= 0; i-- {
			r := reports[i]
			if r.DateScanned.After(parsedDate) || r.DateScanned.Equal(parsedDate) {
				previousReport = r
				break
			}
		}
		if previousReport == nil {
			return fmt.Errorf("no scans found since %s", sinceDate)
		}
		if previousReport == currentReport {
			return fmt.Errorf("only one scan found since %s; at least 2 scans are required for comparison", sinceDate)
		}
	default:
		previousReport = reports[1]
	}

	comparison := compareReports(previousReport, currentReport)

	if jsonOutput {
		return outputComparisonJSON(comparison)
	}
	return outputComparisonText(comparison)
}

// ComparisonResult holds the result of comparing two scan reports.
type ComparisonResult struct {
	// Target is the scanned base URL.
	Target string `json:"target"`

	// PreviousScan contains metadata about the previous scan.
	PreviousScan ScanMetadata `json:"previous_scan"`

	// CurrentScan contains metadata about the current scan.
	CurrentScan ScanMetadata `json:"current_scan"`

	// NewErrors contains error pages that are new in the current scan.
	NewErrors []ErrorPage `json:"new_errors,omitempty"`

	// ResolvedErrors contains error pages from the previous scan that no
	// longer error in the current one.
	ResolvedErrors []ErrorPage `json:"resolved_errors,omitempty"`

	// UnchangedCount is the number of error pages present in both scans.
	UnchangedCount int `json:"unchanged_count"`

	// HealthChange describes the overall change between the scans.
	HealthChange HealthChange `json:"health_change"`
}

// ErrorPage identifies one erroring URL for comparison display.
type ErrorPage struct {
	// URL is the page URL.
	URL string `json:"url"`

	// StatusCode is the response status, or 0 for transport failures.
	StatusCode int `json:"status_code"`

	// Bucket is the status bucket the page fell into.
	Bucket string `json:"bucket"`
}

// ScanMetadata contains metadata about a scan for comparison display.
type ScanMetadata struct {
	// DateScanned is when the scan was performed.
	DateScanned time.Time `json:"date_scanned"`

	// PagesCrawled is the number of pages fetched.
	PagesCrawled int `json:"pages_crawled"`

	// ServerErrorCount is the number of 5xx responses.
	ServerErrorCount int `json:"server_error_count"`

	// ClientErrorCount is the number of 4xx responses.
	ClientErrorCount int `json:"client_error_count"`

	// ExceptionCount is the number of timeouts and transport failures.
	ExceptionCount int `json:"exception_count"`

	// AuthFailureCount is the number of login redirects observed.
	AuthFailureCount int `json:"auth_failure_count"`
}

// HealthChange describes the change in application health between scans.
type HealthChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	// ServerErrorDelta is the change in 5xx count.
	ServerErrorDelta int `json:"server_error_delta"`

	// ClientErrorDelta is the change in 4xx count.
	ClientErrorDelta int `json:"client_error_delta"`

	// ExceptionDelta is the change in exception count.
	ExceptionDelta int `json:"exception_delta"`

	// AuthFailureDelta is the change in authentication failure count.
	AuthFailureDelta int `json:"auth_failure_delta"`
}

// compareReports compares two scan reports and generates a comparison result.
func compareReports(previous, current *model.ScanReport) *ComparisonResult {
	result := &ComparisonResult{
		Target:       current.Target,
		PreviousScan: scanMetadata(previous),
		CurrentScan:  scanMetadata(current),
	}

	previousErrors := errorPageMap(previous)
	currentErrors := errorPageMap(current)

	// New errors: in current but not in previous
	for key, page := range currentErrors {
		if _, exists := previousErrors[key]; !exists {
			result.NewErrors = append(result.NewErrors, page)
		}
	}

	// Resolved errors: in previous but not in current
	for key, page := range previousErrors {
		if _, exists := currentErrors[key]; !exists {
			result.ResolvedErrors = append(result.ResolvedErrors, page)
		} else {
			result.UnchangedCount++
		}
	}

	result.HealthChange = calculateHealthChange(result.PreviousScan, result.CurrentScan)

	return result
}

// scanMetadata extracts comparison metadata from a report.
func scanMetadata(r *model.ScanReport) ScanMetadata {
	return ScanMetadata{
		DateScanned:      r.DateScanned,
		PagesCrawled:     r.PagesCrawled(),
		ServerErrorCount: len(r.ServerErrors),
		ClientErrorCount: len(r.ClientErrors),
		ExceptionCount:   len(r.Exceptions),
		AuthFailureCount: len(r.AuthFailures),
	}
}

// errorPageMap builds a URL-keyed map of a report's error pages.
// The key includes the status code so a URL whose error changed shows up
// as both resolved and new.
func errorPageMap(r *model.ScanReport) map[string]ErrorPage {
	pages := make(map[string]ErrorPage)
	for _, result := range r.ErrorResults() {
		page := ErrorPage{
			URL:        result.URL,
			StatusCode: result.StatusCode,
			Bucket:     string(result.Bucket()),
		}
		key := page.URL + "|" + strconv.Itoa(page.StatusCode)
		pages[key] = page
	}
	return pages
}

// calculateHealthChange calculates the change in health between two scans.
func calculateHealthChange(previous, current ScanMetadata) HealthChange {
	change := HealthChange{
		ServerErrorDelta: current.ServerErrorCount - previous.ServerErrorCount,
		ClientErrorDelta: current.ClientErrorCount - previous.ClientErrorCount,
		ExceptionDelta:   current.ExceptionCount - previous.ExceptionCount,
		AuthFailureDelta: current.AuthFailureCount - previous.AuthFailureCount,
	}

	// Server errors and exceptions weigh more than 4xx pages: a broken
	// handler is worse than a stale link.
	previousScore := previous.ServerErrorCount*10 + previous.ExceptionCount*5 +
		previous.AuthFailureCount*3 + previous.ClientErrorCount
	currentScore := current.ServerErrorCount*10 + current.ExceptionCount*5 +
		current.AuthFailureCount*3 + current.ClientErrorCount

	switch {
	case currentScore < previousScore:
		change.Direction = healthDirectionImproved
	case currentScore > previousScore:
		change.Direction = healthDirectionWorsened
	default:
		change.Direction = healthDirectionUnchanged
	}

	return change
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(result *ComparisonResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(result *ComparisonResult) error {
	fmt.Printf("Scan Comparison: %s\n", result.Target)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\nHealth Status: %s\n", formatHealthDirection(result.HealthChange.Direction))

	fmt.Printf("\nPrevious scan: %s\n", result.PreviousScan.DateScanned.Format("2006-01-02 15:04:05"))
	fmt.Printf("Current scan:  %s\n", result.CurrentScan.DateScanned.Format("2006-01-02 15:04:05"))

	fmt.Println("\nError Summary:")
	fmt.Printf("  %-14s  %-10s  %-10s  %-10s\n", "Category", "Previous", "Current", "Change")
	fmt.Println("  " + strings.Repeat("-", 50))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Server (5xx)",
		result.PreviousScan.ServerErrorCount, result.CurrentScan.ServerErrorCount,
		formatDelta(result.HealthChange.ServerErrorDelta))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Client (4xx)",
		result.PreviousScan.ClientErrorCount, result.CurrentScan.ClientErrorCount,
		formatDelta(result.HealthChange.ClientErrorDelta))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Exceptions",
		result.PreviousScan.ExceptionCount, result.CurrentScan.ExceptionCount,
		formatDelta(result.HealthChange.ExceptionDelta))
	fmt.Printf("  %-14s  %-10d  %-10d  %-10s\n", "Auth failures",
		result.PreviousScan.AuthFailureCount, result.CurrentScan.AuthFailureCount,
		formatDelta(result.HealthChange.AuthFailureDelta))

	if len(result.NewErrors) > 0 {
		fmt.Printf("\nNew Errors (%d):\n", len(result.NewErrors))
		for _, page := range result.NewErrors {
			fmt.Printf("  [+] [%s] %s\n", formatStatus(page), page.URL)
		}
	}

	if len(result.ResolvedErrors) > 0 {
		fmt.Printf("\nResolved Errors (%d):\n", len(result.ResolvedErrors))
		for _, page := range result.ResolvedErrors {
			fmt.Printf("  [-] [%s] %s\n", formatStatus(page), page.URL)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Printf("\nUnchanged: %d error pages\n", result.UnchangedCount)
	}

	return nil
}

// formatStatus formats an error page's status for display.
func formatStatus(page ErrorPage) string {
	if page.StatusCode == 0 {
		return "EXC"
	}
	return strconv.Itoa(page.StatusCode)
}

// formatHealthDirection formats the health change direction for display.
func formatHealthDirection(direction string) string {
	switch direction {
	case healthDirectionImproved:
		return "IMPROVED (fewer errors)"
	case healthDirectionWorsened:
		return "WORSENED (more errors)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
