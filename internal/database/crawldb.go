package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aria5/authscan/internal/model"
)

// ScanDB provides SQLite-based storage for page results and scan reports.
// It manages connection pooling and provides methods for CRUD operations.
//
// Design decision: We use a single database file for all targets rather
// than separate files per target. This makes cross-scan history queries
// and backup/restore operations simpler.
type ScanDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ScanDB at the specified path.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, "authscan.db")

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string
	// We use modernc.org/sqlite which uses a different connection string format.
	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	// When CreateIfNotExists is true, we use mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScanDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *ScanDB) Close() error {
	return sdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (sdb *ScanDB) createTables() error {
	schema := `
	-- Page records store individual page fetch results
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		target TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		status_code INTEGER,
		outcome TEXT,
		bucket TEXT,
		content_type TEXT,
		content_length INTEGER,
		response_time_ms INTEGER,
		title TEXT,
		error TEXT,
		UNIQUE(url, target)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	CREATE INDEX IF NOT EXISTS idx_pages_target ON pages(target);
	CREATE INDEX IF NOT EXISTS idx_pages_bucket ON pages(bucket);
	CREATE INDEX IF NOT EXISTS idx_pages_timestamp ON pages(timestamp);

	-- Endpoints track API routes discovered in page markup (forms, HTMX attributes)
	CREATE TABLE IF NOT EXISTS endpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		source_url TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_endpoints_target ON endpoints(target);
	CREATE INDEX IF NOT EXISTS idx_endpoints_endpoint ON endpoints(endpoint);

	-- Scan reports store complete scan results as JSON
	CREATE TABLE IF NOT EXISTS scan_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		report_json TEXT NOT NULL,
		summary_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_target ON scan_reports(target);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON scan_reports(timestamp);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// PageRecord represents a stored page fetch result.
type PageRecord struct {
	ID             int64
	URL            string
	Target         string
	Timestamp      time.Time
	StatusCode     int
	Outcome        string
	Bucket         string
	ContentType    string
	ContentLength  int64
	ResponseTimeMS int64
	Title          string
	Error          string
}

// NewPageRecord converts a page result into a storable record.
func NewPageRecord(target string, result *model.PageResult) *PageRecord {
	return &PageRecord{
		URL:            result.URL,
		Target:         target,
		StatusCode:     result.StatusCode,
		Outcome:        string(result.Outcome),
		Bucket:         string(result.Bucket()),
		ContentType:    result.ContentType,
		ContentLength:  int64(result.ContentLength),
		ResponseTimeMS: result.ResponseTime.Milliseconds(),
		Title:          result.Title,
		Error:          result.Error,
	}
}

// InsertPageRecord inserts or updates a page record.
// Uses UPSERT to handle duplicates (same URL + target).
func (sdb *ScanDB) InsertPageRecord(ctx context.Context, record *PageRecord) (int64, error) {
	query := `
	INSERT INTO pages (url, target, status_code, outcome, bucket, content_type, content_length, response_time_ms, title, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url, target) DO UPDATE SET
		status_code = excluded.status_code,
		outcome = excluded.outcome,
		bucket = excluded.bucket,
		content_type = excluded.content_type,
		content_length = excluded.content_length,
		response_time_ms = excluded.response_time_ms,
		title = excluded.title,
		error = excluded.error,
		timestamp = CURRENT_TIMESTAMP
	`

	result, err := sdb.db.ExecContext(ctx, query,
		record.URL,
		record.Target,
		record.StatusCode,
		record.Outcome,
		record.Bucket,
		record.ContentType,
		record.ContentLength,
		record.ResponseTimeMS,
		record.Title,
		record.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert page record: %w", err)
	}

	return result.LastInsertId()
}

// GetPageRecord retrieves a page record by URL and target.
func (sdb *ScanDB) GetPageRecord(ctx context.Context, url, target string) (*PageRecord, error) {
	query := `
	SELECT id, url, target, timestamp, status_code, outcome, bucket, content_type, content_length, response_time_ms, title, error
	FROM pages
	WHERE url = ? AND target = ?
	`

	var record PageRecord
	var timestamp string

	err := sdb.db.QueryRowContext(ctx, query, url, target).Scan(
		&record.ID,
		&record.URL,
		&record.Target,
		&timestamp,
		&record.StatusCode,
		&record.Outcome,
		&record.Bucket,
		&record.ContentType,
		&record.ContentLength,
		&record.ResponseTimeMS,
		&record.Title,
		&record.Error,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page record: %w", err)
	}

	// SQLite may return timestamps in different formats depending on configuration
	record.Timestamp = parseTimestamp(timestamp)

	return &record, nil
}

// HasRecentCrawl checks if a URL was crawled within the specified duration.
func (sdb *ScanDB) HasRecentCrawl(ctx context.Context, url string, duration time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM pages
	WHERE url = ? AND timestamp > datetime('now', ?)
	`

	// SQLite datetime modifier format
	modifier := fmt.Sprintf("-%d seconds", int(duration.Seconds()))

	var count int
	err := sdb.db.QueryRowContext(ctx, query, url, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent crawl: %w", err)
	}

	return count > 0, nil
}

// Endpoint represents an API route discovered in page markup.
type Endpoint struct {
	ID        int64
	Target    string
	Endpoint  string
	Method    string
	SourceURL string
	Timestamp time.Time
}

// InsertEndpoint inserts a new discovered endpoint record.
func (sdb *ScanDB) InsertEndpoint(ctx context.Context, ep *Endpoint) error {
	query := `
	INSERT INTO endpoints (target, endpoint, method, source_url)
	VALUES (?, ?, ?, ?)
	`

	_, err := sdb.db.ExecContext(ctx, query,
		ep.Target,
		ep.Endpoint,
		ep.Method,
		ep.SourceURL,
	)
	if err != nil {
		return fmt.Errorf("failed to insert endpoint: %w", err)
	}

	return nil
}

// QueryEndpoints queries discovered endpoints with optional filters.
func (sdb *ScanDB) QueryEndpoints(ctx context.Context, target, method string) ([]Endpoint, error) {
	query := `
	SELECT id, target, endpoint, method, source_url, timestamp
	FROM endpoints
	WHERE 1=1
	`
	args := make([]interface{}, 0)

	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	if method != "" {
		query += " AND method = ?"
		args = append(args, method)
	}

	query += " ORDER BY timestamp DESC"

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close()

	var results []Endpoint
	for rows.Next() {
		var ep Endpoint
		var timestamp string

		err := rows.Scan(
			&ep.ID,
			&ep.Target,
			&ep.Endpoint,
			&ep.Method,
			&ep.SourceURL,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}

		ep.Timestamp = parseTimestamp(timestamp)
		results = append(results, ep)
	}

	return results, rows.Err()
}

// SaveScanReport saves a complete scan report as JSON.
func (sdb *ScanDB) SaveScanReport(ctx context.Context, report *model.ScanReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	summary := report.Summary
	if summary == nil {
		summary = model.NewSummary(report)
	}
	summaryJSON, _ := json.Marshal(summary) //nolint:errcheck,errchkjson // summary contains only scalar fields; Marshal won't fail

	query := `
	INSERT INTO scan_reports (target, report_json, summary_json)
	VALUES (?, ?, ?)
	`

	_, err = sdb.db.ExecContext(ctx, query,
		report.Target,
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan report: %w", err)
	}

	return nil
}

// GetLatestScanReport retrieves the most recent scan report for a target.
func (sdb *ScanDB) GetLatestScanReport(ctx context.Context, target string) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE target = ?
	ORDER BY timestamp DESC
	LIMIT 1
	`

	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, target).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}

	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListScannedTargets returns a list of all scanned targets.
func (sdb *ScanDB) ListScannedTargets(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT target FROM scan_reports
	ORDER BY target
	`

	rows, err := sdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}

	return targets, rows.Err()
}

// GetScanHistory retrieves all scan reports for a target, newest first.
func (sdb *ScanDB) GetScanHistory(ctx context.Context, target string) ([]*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE target = ?
	ORDER BY timestamp DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var reports []*model.ScanReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.ScanReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// ScanReportMetadata contains summary information about a scan report.
// This is used for displaying scan history without loading the full report.
type ScanReportMetadata struct {
	// ID is the unique identifier of the scan report in the database.
	ID int64

	// Target is the scanned base URL.
	Target string

	// Timestamp is when the scan was performed.
	Timestamp time.Time

	// Summary contains the bucket counts for the scan.
	Summary *model.Summary
}

// GetScanHistoryWithMetadata retrieves scan report metadata for a target.
// This is more efficient than GetScanHistory when only metadata is needed.
func (sdb *ScanDB) GetScanHistoryWithMetadata(ctx context.Context, target string) ([]ScanReportMetadata, error) {
	query := `
	SELECT id, target, timestamp, summary_json
	FROM scan_reports
	WHERE target = ?
	ORDER BY timestamp DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var results []ScanReportMetadata
	for rows.Next() {
		var meta ScanReportMetadata
		var timestamp string
		var summaryJSON sql.NullString

		if err := rows.Scan(&meta.ID, &meta.Target, &timestamp, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.Timestamp = parseTimestamp(timestamp)

		if summaryJSON.Valid && summaryJSON.String != "" {
			var summary model.Summary
			if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err == nil {
				meta.Summary = &summary
			}
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetScanReportByID retrieves a scan report by its database ID.
func (sdb *ScanDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE id = ?
	`

	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}

	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
