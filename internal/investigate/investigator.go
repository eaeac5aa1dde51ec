package investigate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aria5/authscan/internal/model"
)

// defaultMaxBodySize limits how much of a probed response is read.
const defaultMaxBodySize = 5 * 1024 * 1024

// errorIndicators are substrings that suggest an error page is leaking
// internal details. Matched case-insensitively against the body.
var errorIndicators = []string{
	"error", "exception", "stack trace", "internal server error",
	"database error", "connection error", "timeout",
	"undefined", "null reference", "syntax error",
}

// errorPatterns capture the text surrounding common failure keywords so
// the report can show what the page actually said.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error[^a-zA-Z][^<>]*`),
	regexp.MustCompile(`(?i)exception[^a-zA-Z][^<>]*`),
	regexp.MustCompile(`(?i)failed[^a-zA-Z][^<>]*`),
	regexp.MustCompile(`(?i)undefined[^a-zA-Z][^<>]*`),
}

// uiPathKeywords mark 404 paths that belong to user-facing pages rather
// than API endpoints.
var uiPathKeywords = []string{"/dashboard", "/phase", "/dynamic"}

// maxPatternMatches caps how many regex matches are kept per pattern.
const maxPatternMatches = 3

// contentPreviewSize is how much of the body is embedded in the JSON result.
const contentPreviewSize = 1000

// Fetcher issues authenticated GET requests.
// It is satisfied by auth.Session.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// ServerErrorProbe holds the detailed result of re-fetching one 5xx URL.
type ServerErrorProbe struct {
	// URL is the probed URL.
	URL string `json:"url"`

	// StatusCode is the status observed during the probe.
	StatusCode int `json:"status_code"`

	// ContentType is the response Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// ContentLength is the number of body bytes read.
	ContentLength int64 `json:"content_length"`

	// Title is the HTML page title, if the response was HTML.
	Title string `json:"title,omitempty"`

	// Indicators lists the error-indicator keywords found in the body.
	Indicators []string `json:"indicators,omitempty"`

	// PatternMatches lists text fragments captured by the error patterns.
	PatternMatches []string `json:"pattern_matches,omitempty"`

	// VisibleError is the text of error-marked elements on the page.
	VisibleError string `json:"visible_error,omitempty"`

	// ContentPreview is the start of the response body.
	ContentPreview string `json:"content_preview,omitempty"`

	// SavedTo is the path of the saved raw response, if saving succeeded.
	SavedTo string `json:"saved_to,omitempty"`

	// Error describes a probe that failed at transport level.
	Error string `json:"error,omitempty"`

	// InvestigatedAt is when the probe ran.
	InvestigatedAt time.Time `json:"investigated_at"`
}

// NotFoundPatterns groups 404 paths by what kind of endpoint they look like.
type NotFoundPatterns struct {
	// APIEndpoints are 404 paths under /api/.
	APIEndpoints []string `json:"api_endpoints,omitempty"`

	// UIPages are 404 paths that look like user-facing pages.
	UIPages []string `json:"ui_pages,omitempty"`

	// Other are 404 paths that fit neither group.
	Other []string `json:"other,omitempty"`
}

// Investigation is the complete result of an error investigation.
type Investigation struct {
	// Timestamp is when the investigation ran.
	Timestamp time.Time `json:"timestamp"`

	// Target is the base URL under investigation.
	Target string `json:"target"`

	// ServerErrors holds the probe results for 5xx URLs.
	ServerErrors []*ServerErrorProbe `json:"server_errors,omitempty"`

	// NotFoundPatterns groups the 404 paths from the prior scan.
	NotFoundPatterns *NotFoundPatterns `json:"not_found_patterns,omitempty"`

	// Recommendations are remediation priorities derived from the findings.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Investigator re-probes errors recorded by a previous scan.
type Investigator struct {
	// fetcher issues the authenticated requests.
	fetcher Fetcher

	// outputDir is where raw error responses are saved.
	// Empty disables saving.
	outputDir string

	// maxBodySize limits how much of each response is read.
	maxBodySize int64

	// logger records investigation progress.
	logger *slog.Logger
}

// Option configures an Investigator.
type Option func(*Investigator)

// WithOutputDir sets the directory where raw error responses are saved.
func WithOutputDir(dir string) Option {
	return func(i *Investigator) {
		i.outputDir = dir
	}
}

// WithMaxBodySize limits how much of each probed response is read.
func WithMaxBodySize(n int64) Option {
	return func(i *Investigator) {
		i.maxBodySize = n
	}
}

// WithLogger sets the logger for investigation progress.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Investigator) {
		i.logger = logger
	}
}

// NewInvestigator creates an Investigator that probes through the given fetcher.
func NewInvestigator(fetcher Fetcher, opts ...Option) *Investigator {
	inv := &Investigator{
		fetcher:     fetcher,
		maxBodySize: defaultMaxBodySize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(inv)
	}

	return inv
}

// Run investigates the errors recorded in a previous scan report.
// It probes every 5xx URL and groups the 404 paths, then derives
// remediation recommendations.
func (i *Investigator) Run(ctx context.Context, report *model.ScanReport) (*Investigation, error) {
	result := &Investigation{
		Timestamp: time.Now(),
		Target:    report.Target,
	}

	i.logger.Info("starting error investigation",
		slog.String("target", report.Target),
		slog.Int("server_errors", len(report.ServerErrors)),
	)

	for _, page := range report.ServerErrors {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		probe := i.probeServerError(ctx, page.URL)
		result.ServerErrors = append(result.ServerErrors, probe)
	}

	result.NotFoundPatterns = groupNotFound(notFoundPaths(report))
	result.Recommendations = recommendations(result)

	i.logger.Info("investigation complete",
		slog.Int("probed", len(result.ServerErrors)),
		slog.Int("recommendations", len(result.Recommendations)),
	)

	return result, nil
}

// probeServerError re-fetches one 5xx URL and inspects the response body.
func (i *Investigator) probeServerError(ctx context.Context, rawURL string) *ServerErrorProbe {
	probe := &ServerErrorProbe{
		URL:            rawURL,
		InvestigatedAt: time.Now(),
	}

	i.logger.Info("investigating server error", slog.String("url", rawURL))

	resp, err := i.fetcher.Get(ctx, rawURL)
	if err != nil {
		probe.Error = err.Error()
		i.logger.Error("probe failed", slog.String("url", rawURL), slog.String("error", err.Error()))
		return probe
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBodySize))
	if err != nil {
		probe.Error = err.Error()
		return probe
	}

	probe.StatusCode = resp.StatusCode
	probe.ContentType = resp.Header.Get("Content-Type")
	probe.ContentLength = int64(len(body))

	if strings.Contains(probe.ContentType, "text/html") {
		i.inspectHTML(probe, body)
	}

	preview := string(body)
	if len(preview) > contentPreviewSize {
		preview = preview[:contentPreviewSize]
	}
	probe.ContentPreview = preview

	if i.outputDir != "" {
		if saved, err := i.saveResponse(rawURL, body); err != nil {
			i.logger.Warn("failed to save response", slog.String("url", rawURL), slog.String("error", err.Error()))
		} else {
			probe.SavedTo = saved
			i.logger.Info("response saved", slog.String("path", saved))
		}
	}

	return probe
}

// inspectHTML scans an HTML body for error indicators, pattern matches,
// and visible error text.
func (i *Investigator) inspectHTML(probe *ServerErrorProbe, body []byte) {
	content := strings.ToLower(string(body))

	for _, indicator := range errorIndicators {
		if strings.Contains(content, indicator) {
			probe.Indicators = append(probe.Indicators, indicator)
		}
	}
	if len(probe.Indicators) > 0 {
		i.logger.Warn("error indicators found",
			slog.String("url", probe.URL),
			slog.Any("indicators", probe.Indicators),
		)
	}

	for _, pattern := range errorPatterns {
		matches := pattern.FindAllString(content, maxPatternMatches)
		for _, m := range matches {
			probe.PatternMatches = append(probe.PatternMatches, strings.TrimSpace(m))
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return
	}
	probe.Title = strings.TrimSpace(doc.Find("title").First().Text())
	probe.VisibleError = strings.TrimSpace(doc.Find("[class*=error], [id*=error]").First().Text())
}

// saveResponse writes the raw response body to the output directory for
// manual review. The filename is derived from the URL path.
func (i *Investigator) saveResponse(rawURL string, body []byte) (string, error) {
	if err := os.MkdirAll(i.outputDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := "error_response_" + sanitizeFilename(rawURL) + ".html"
	path := filepath.Join(i.outputDir, name)

	if err := os.WriteFile(path, body, 0600); err != nil {
		return "", fmt.Errorf("failed to save response: %w", err)
	}

	return path, nil
}

// sanitizeFilename converts a URL into a safe filename fragment.
func sanitizeFilename(rawURL string) string {
	s := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		s = u.Path
	}

	replacer := strings.NewReplacer("/", "_", ":", "_", "?", "_", "&", "_", "=", "_", " ", "_")
	s = strings.Trim(replacer.Replace(s), "_")
	if s == "" {
		s = "root"
	}
	return s
}

// notFoundPaths extracts the 404 URL paths from a scan report.
func notFoundPaths(report *model.ScanReport) []string {
	var paths []string
	for _, page := range report.ClientErrors {
		if page.StatusCode != http.StatusNotFound {
			continue
		}
		if u, err := url.Parse(page.URL); err == nil {
			paths = append(paths, u.Path)
		} else {
			paths = append(paths, page.URL)
		}
	}
	return paths
}

// groupNotFound classifies 404 paths into API endpoints, UI pages, and
// everything else.
func groupNotFound(paths []string) *NotFoundPatterns {
	patterns := &NotFoundPatterns{}

	for _, path := range paths {
		switch {
		case strings.HasPrefix(path, "/api/"):
			patterns.APIEndpoints = append(patterns.APIEndpoints, path)
		case containsAny(path, uiPathKeywords):
			patterns.UIPages = append(patterns.UIPages, path)
		default:
			patterns.Other = append(patterns.Other, path)
		}
	}

	return patterns
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// recommendations derives remediation priorities from the investigation.
func recommendations(inv *Investigation) []string {
	var recs []string

	if len(inv.ServerErrors) > 0 {
		recs = append(recs, fmt.Sprintf(
			"CRITICAL: fix %d server error(s) immediately - these indicate application failures",
			len(inv.ServerErrors),
		))
	}

	if inv.NotFoundPatterns != nil {
		if n := len(inv.NotFoundPatterns.APIEndpoints); n > 0 {
			recs = append(recs, fmt.Sprintf(
				"HIGH: %d API endpoint(s) return 404 - may indicate incomplete implementation", n,
			))
		}
		if n := len(inv.NotFoundPatterns.UIPages); n > 0 {
			recs = append(recs, fmt.Sprintf(
				"MEDIUM: %d UI page(s) return 404 - verify intended functionality", n,
			))
		}
	}

	return recs
}
