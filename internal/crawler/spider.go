package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/aria5/authscan/internal/model"
)

// Client is the authenticated HTTP client the spider crawls through.
// auth.Session satisfies this interface.
//
// Design decision: We accept an interface rather than the concrete session
// because the spider only needs three behaviors: fetching, recognizing a
// session-expiry redirect, and re-authenticating. Tests supply a fake.
type Client interface {
	// Get performs an authenticated GET request.
	Get(ctx context.Context, rawURL string) (*http.Response, error)

	// IsLoginRedirect reports whether the response bounced to the login page.
	IsLoginRedirect(resp *http.Response) bool

	// Login (re-)authenticates the session.
	Login(ctx context.Context) error
}

// Spider crawls the target application breadth-first.
// It manages a FIFO queue of URLs, dedupes through a discovered set, and
// classifies every response into the report's status buckets.
//
// The crawl is strictly sequential: one request at a time with a politeness
// delay in between. The target is a single shared application, not a fleet.
type Spider struct {
	// client performs the authenticated requests.
	client Client

	// baseURL restricts the crawl to a single host.
	baseURL *url.URL

	// maxPages limits the total number of pages fetched.
	maxPages int

	// maxRetries is the attempt count for failed requests.
	maxRetries int

	// delay is the politeness delay before each request attempt.
	delay time.Duration

	// maxBodySize limits the response body bytes read per page.
	maxBodySize int64

	// skipPatterns are lowercase substrings; matching URLs are never fetched.
	skipPatterns []string

	// crawled tracks URLs already fetched.
	crawled map[string]bool

	// discovered tracks every unique URL seen, fetched or not.
	discovered map[string]bool

	// logger is used for structured logging.
	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the hard cap on fetched pages.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = n
	}
}

// WithMaxRetries sets the attempt count for failed requests.
func WithMaxRetries(n int) SpiderOption {
	return func(s *Spider) {
		s.maxRetries = n
	}
}

// WithDelay sets the politeness delay before each request.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithSkipPatterns sets the URL substrings that are never crawled.
func WithSkipPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.skipPatterns = patterns
	}
}

// WithSpiderLogger sets the structured logger.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a spider crawling through the given client.
// The base URL restricts the crawl to a single host.
func NewSpider(client Client, baseURL string, opts ...SpiderOption) (*Spider, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	s := &Spider{
		client:      client,
		baseURL:     base,
		maxPages:    200,
		maxRetries:  3,
		delay:       1 * time.Second,
		maxBodySize: 5 * 1024 * 1024, // 5MB
		crawled:     make(map[string]bool),
		discovered:  make(map[string]bool),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Crawl fetches pages breadth-first starting from the seed routes and
// records every result in the report. Seeds may be paths, which are
// resolved against the base URL.
//
// The crawl stops when the queue drains, the page cap is reached, or the
// context is cancelled. On cancellation the report is marked interrupted
// and holds the partial results collected so far.
func (s *Spider) Crawl(ctx context.Context, seeds []string, report *model.ScanReport) error {
	// The queue holds normalized URLs so a fragment or host-case variant
	// of a page never occupies its dedup slot.
	queue := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		resolved := s.resolve(seed)
		if resolved == "" {
			continue
		}
		normalized := s.normalizeURL(resolved)
		if !s.discovered[normalized] {
			s.discovered[normalized] = true
			queue = append(queue, normalized)
		}
	}

	crawledCount := 0
	for len(queue) > 0 && crawledCount < s.maxPages {
		select {
		case <-ctx.Done():
			s.finish(report, true)
			return ctx.Err()
		default:
		}

		// Pop from queue
		pageURL := queue[0]
		queue = queue[1:]

		normalized := s.normalizeURL(pageURL)
		if s.crawled[normalized] {
			continue
		}
		if !s.isSameHost(pageURL) {
			continue
		}
		if s.shouldSkip(pageURL) {
			continue
		}

		result, err := s.fetchPage(ctx, pageURL, report)
		if err != nil {
			s.finish(report, true)
			return err
		}
		s.crawled[normalized] = true
		report.AddResult(result)
		crawledCount++

		// Enqueue newly discovered links in normalized form. Skipped and
		// external links still count as discovered.
		for _, link := range result.Links {
			n := s.normalizeURL(link)
			if s.discovered[n] || s.crawled[n] {
				continue
			}
			s.discovered[n] = true
			if !s.isSameHost(n) || s.shouldSkip(n) {
				continue
			}
			queue = append(queue, n)
		}

		if crawledCount%10 == 0 {
			s.logger.Info("crawl progress",
				"crawled", crawledCount,
				"queued", len(queue),
				"discovered", len(s.discovered),
			)
		}
	}

	s.finish(report, false)
	s.logger.Info("crawl completed", "crawled", crawledCount, "discovered", len(s.discovered))
	return nil
}

// finish records the discovered URL list and the interrupted flag.
func (s *Spider) finish(report *model.ScanReport, interrupted bool) {
	urls := make([]string, 0, len(s.discovered))
	for u := range s.discovered {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	report.DiscoveredURLs = urls
	report.Interrupted = interrupted
}

// fetchPage fetches a single page with retries, handles session expiry,
// and extracts links from successful HTML responses. A non-nil error
// means the context was cancelled before a result was produced.
func (s *Spider) fetchPage(ctx context.Context, pageURL string, report *model.ScanReport) (*model.PageResult, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		// Politeness delay before every attempt, retries included.
		if err := s.wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := s.client.Get(ctx, pageURL)
		if err != nil {
			lastErr = err
			s.logger.Warn("request failed",
				"url", pageURL,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		// A redirect back to the login page means the session expired.
		if s.client.IsLoginRedirect(resp) {
			return s.handleAuthFailure(ctx, pageURL, resp, start, report)
		}

		return s.readResult(pageURL, resp, start), nil
	}

	return exceptionResult(pageURL, lastErr), nil
}

// wait applies the politeness delay, honoring cancellation.
func (s *Spider) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
		return nil
	}
}

// handleAuthFailure records the failure, re-authenticates, and retries the
// original request once. If re-authentication fails, the redirect response
// itself is recorded.
func (s *Spider) handleAuthFailure(ctx context.Context, pageURL string, resp *http.Response, start time.Time, report *model.ScanReport) (*model.PageResult, error) {
	drainBody(resp)

	failure := model.AuthFailure{
		URL:        pageURL,
		StatusCode: resp.StatusCode,
		Timestamp:  time.Now(),
	}

	s.logger.Warn("redirected to login, re-authenticating", "url", pageURL)
	if err := s.client.Login(ctx); err != nil {
		s.logger.Error("re-authentication failed", "url", pageURL, "error", err)
		report.AddAuthFailure(failure)
		return &model.PageResult{
			URL:          pageURL,
			StatusCode:   resp.StatusCode,
			Outcome:      model.OutcomeOK,
			ResponseTime: time.Since(start),
		}, nil
	}

	failure.Recovered = true
	report.AddAuthFailure(failure)

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	retryStart := time.Now()
	retryResp, err := s.client.Get(ctx, pageURL)
	if err != nil {
		return exceptionResult(pageURL, err), nil
	}
	return s.readResult(pageURL, retryResp, retryStart), nil
}

// readResult reads the response into a page result and extracts links
// from successful HTML responses.
func (s *Spider) readResult(pageURL string, resp *http.Response, start time.Time) *model.PageResult {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	elapsed := time.Since(start)
	if err != nil {
		return exceptionResult(pageURL, err)
	}

	result := &model.PageResult{
		URL:           pageURL,
		StatusCode:    resp.StatusCode,
		Outcome:       model.OutcomeOK,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: len(body),
		ResponseTime:  elapsed,
	}

	if resp.StatusCode == http.StatusOK && result.IsHTML() {
		s.extractLinks(pageURL, body, result)
	}

	switch result.Bucket() {
	case model.BucketSuccess:
		s.logger.Debug("page ok", "url", pageURL, "status", resp.StatusCode)
	case model.BucketClientError:
		s.logger.Warn("client error", "url", pageURL, "status", resp.StatusCode)
	case model.BucketServerError:
		s.logger.Error("server error", "url", pageURL, "status", resp.StatusCode)
	default:
		s.logger.Info("unclassified status", "url", pageURL, "status", resp.StatusCode)
	}

	return result
}

// extractLinks parses the HTML body and attaches same-host links.
// The body is decoded through the declared charset before parsing.
func (s *Spider) extractLinks(pageURL string, body []byte, result *model.PageResult) {
	parser, err := NewParser(pageURL)
	if err != nil {
		return
	}

	reader, err := charset.NewReader(bytes.NewReader(body), result.ContentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}

	parsed, err := parser.Parse(reader)
	if err != nil {
		s.logger.Warn("failed to parse page", "url", pageURL, "error", err)
		return
	}

	result.Title = parsed.Title
	result.Links = parsed.InternalLinks
	for _, ep := range parsed.Endpoints {
		result.Endpoints = append(result.Endpoints, model.Endpoint{URL: ep.URL, Method: ep.Method})
	}
}

// exceptionResult builds a result for a fetch that never produced a
// status code, distinguishing timeouts from other transport failures.
func exceptionResult(pageURL string, err error) *model.PageResult {
	outcome := model.OutcomeError
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		outcome = model.OutcomeTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		outcome = model.OutcomeTimeout
	}

	result := &model.PageResult{
		URL:     pageURL,
		Outcome: outcome,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// shouldSkip reports whether the URL matches any skip pattern.
// Patterns are substring matches against the lowercased URL.
func (s *Spider) shouldSkip(pageURL string) bool {
	lower := strings.ToLower(pageURL)
	for _, pattern := range s.skipPatterns {
		if pattern != "" && strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// isSameHost checks if a URL belongs to the target host.
func (s *Spider) isSameHost(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, s.baseURL.Host)
}

// resolve joins a seed path with the base URL.
// Absolute URLs pass through unchanged; unparsable seeds resolve to "".
func (s *Spider) resolve(seed string) string {
	ref, err := url.Parse(seed)
	if err != nil {
		return ""
	}
	return s.baseURL.ResolveReference(ref).String()
}

// normalizeURL normalizes a URL for deduplication. Fragments don't change
// the served content, scheme and host are case-insensitive, and an empty
// path is the root path.
func (s *Spider) normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// drainBody discards and closes a response body so the connection can be
// reused.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // Best effort drain
	_ = resp.Body.Close()                                          //nolint:errcheck // Best effort close
}
