package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aria5/authscan/internal/model"
)

// stubClient implements Client over a plain HTTP client, with hooks for
// simulating session expiry and re-authentication.
type stubClient struct {
	client        *http.Client
	loginRedirect func(resp *http.Response) bool
	loginFunc     func(ctx context.Context) error
	loginCalls    atomic.Int32
}

func (c *stubClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

func (c *stubClient) IsLoginRedirect(resp *http.Response) bool {
	if c.loginRedirect == nil {
		return false
	}
	return c.loginRedirect(resp)
}

func (c *stubClient) Login(ctx context.Context) error {
	c.loginCalls.Add(1)
	if c.loginFunc == nil {
		return nil
	}
	return c.loginFunc(ctx)
}

// testLogger silences spider logging in tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSpiderCrawl tests the breadth-first crawl.
func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls linked pages breadth-first", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			switch r.URL.Path {
			case "/":
				_, _ = w.Write([]byte(`<a href="/risks">Risks</a><a href="/audits">Audits</a>`))
			case "/risks":
				_, _ = w.Write([]byte(`<a href="/risks/1">Risk 1</a>`))
			case "/audits", "/risks/1":
				_, _ = w.Write([]byte(`<p>leaf</p>`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		spider, err := NewSpider(&stubClient{client: server.Client()}, server.URL,
			WithDelay(0),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.PagesCrawled() != 4 {
			t.Errorf("expected 4 pages crawled, got %d", report.PagesCrawled())
		}
		if len(report.Successful) != 4 {
			t.Errorf("expected 4 successful pages, got %d", len(report.Successful))
		}
		if len(report.DiscoveredURLs) != 4 {
			t.Errorf("expected 4 discovered URLs, got %v", report.DiscoveredURLs)
		}
		if !sort.StringsAreSorted(report.DiscoveredURLs) {
			t.Errorf("expected discovered URLs to be sorted, got %v", report.DiscoveredURLs)
		}
		if report.Interrupted {
			t.Error("expected Interrupted to be false")
		}
	})

	t.Run("buckets error responses", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			switch r.URL.Path {
			case "/":
				_, _ = w.Write([]byte(`<a href="/broken">B</a><a href="/missing">M</a>`))
			case "/broken":
				http.Error(w, "boom", http.StatusInternalServerError)
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		spider, err := NewSpider(&stubClient{client: server.Client()}, server.URL,
			WithDelay(0),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.ServerErrors) != 1 {
			t.Errorf("expected 1 server error, got %d", len(report.ServerErrors))
		}
		if len(report.ClientErrors) != 1 {
			t.Errorf("expected 1 client error, got %d", len(report.ClientErrors))
		}
	})

	t.Run("respects page cap", func(t *testing.T) {
		t.Parallel()

		// Every page links to a fresh URL, so the crawl would never drain
		// without the cap.
		var counter atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			n := counter.Add(1)
			_, _ = w.Write([]byte(`<a href="/page` + string(rune('a'+n%26)) + `">next</a>`))
		}))
		defer server.Close()

		spider, err := NewSpider(&stubClient{client: server.Client()}, server.URL,
			WithDelay(0),
			WithMaxPages(5),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.PagesCrawled() > 5 {
			t.Errorf("expected at most 5 pages crawled, got %d", report.PagesCrawled())
		}
	})

	t.Run("skips matching patterns and other hosts", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			if r.URL.Path == "/" {
				_, _ = w.Write([]byte(`
					<a href="/logout">Logout</a>
					<a href="/style.css">CSS</a>
					<a href="http://other.example.com/page">External</a>
					<a href="/keep">Keep</a>`))
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		spider, err := NewSpider(&stubClient{client: server.Client()}, server.URL,
			WithDelay(0),
			WithSkipPatterns([]string{"/logout", ".css"}),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Only / and /keep are fetched
		if report.PagesCrawled() != 2 {
			t.Errorf("expected 2 pages crawled, got %d", report.PagesCrawled())
		}
		for _, result := range report.Results() {
			if result.URL == server.URL+"/logout" {
				t.Error("logout URL should never be fetched")
			}
		}
	})

	t.Run("fragment link does not shadow the clean page", func(t *testing.T) {
		t.Parallel()

		// A "#" skip pattern must drop only genuine fragment-URLs. A link
		// like /page#section dedupes to /page, which still gets crawled.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			if r.URL.Path == "/" {
				_, _ = w.Write([]byte(`<a href="/page#section">Section</a><a href="/page">Page</a>`))
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		spider, err := NewSpider(&stubClient{client: server.Client()}, server.URL,
			WithDelay(0),
			WithSkipPatterns([]string{"#", "/logout"}),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.PagesCrawled() != 2 {
			t.Errorf("expected 2 pages crawled, got %d", report.PagesCrawled())
		}
		found := false
		for _, result := range report.Results() {
			if result.URL == server.URL+"/page" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected /page to be fetched, got %v", report.DiscoveredURLs)
		}
	})

	t.Run("delays before every retry attempt", func(t *testing.T) {
		t.Parallel()

		delay := 30 * time.Millisecond
		spider, err := NewSpider(&stubClient{client: &http.Client{}}, "http://127.0.0.1:1",
			WithDelay(delay),
			WithMaxRetries(3),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport("http://127.0.0.1:1")
		start := time.Now()
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Three failing attempts, each preceded by the politeness delay.
		if elapsed := time.Since(start); elapsed < 3*delay {
			t.Errorf("expected at least %s of delays across retries, got %s", 3*delay, elapsed)
		}
		if len(report.Exceptions) != 1 {
			t.Errorf("expected 1 exception, got %d", len(report.Exceptions))
		}
	})

	t.Run("records transport failures as exceptions", func(t *testing.T) {
		t.Parallel()

		spider, err := NewSpider(&stubClient{client: &http.Client{}}, "http://127.0.0.1:1",
			WithDelay(0),
			WithMaxRetries(2),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport("http://127.0.0.1:1")
		if err := spider.Crawl(context.Background(), []string{"/"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Exceptions) != 1 {
			t.Fatalf("expected 1 exception, got %d", len(report.Exceptions))
		}
		if report.Exceptions[0].Error == "" {
			t.Error("expected exception to carry the error message")
		}
	})

	t.Run("marks report interrupted on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		spider, err := NewSpider(&stubClient{client: &http.Client{}}, "http://grc.example.com",
			WithDelay(0),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport("http://grc.example.com")
		err = spider.Crawl(ctx, []string{"/"}, report)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if !report.Interrupted {
			t.Error("expected Interrupted to be true")
		}
	})
}

// TestSpiderAuthFailure tests session expiry handling mid-crawl.
func TestSpiderAuthFailure(t *testing.T) {
	t.Parallel()

	t.Run("re-authenticates and retries", func(t *testing.T) {
		t.Parallel()

		// The first request to /protected redirects to login; after
		// re-authentication the retry succeeds.
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			if r.URL.Path == "/protected" && hits.Add(1) == 1 {
				w.Header().Set("Location", "/login")
				w.WriteHeader(http.StatusFound)
				return
			}
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := &stubClient{
			client: &http.Client{
				CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
					return http.ErrUseLastResponse
				},
			},
			loginRedirect: func(resp *http.Response) bool {
				return resp.StatusCode == http.StatusFound &&
					resp.Header.Get("Location") == "/login"
			},
		}

		spider, err := NewSpider(client, server.URL,
			WithDelay(0),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/protected"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if client.loginCalls.Load() != 1 {
			t.Errorf("expected 1 re-authentication, got %d", client.loginCalls.Load())
		}
		if len(report.AuthFailures) != 1 {
			t.Fatalf("expected 1 auth failure, got %d", len(report.AuthFailures))
		}
		failure := report.AuthFailures[0]
		if !failure.Recovered {
			t.Error("expected auth failure to be marked recovered")
		}
		if failure.StatusCode != http.StatusFound {
			t.Errorf("expected status 302, got %d", failure.StatusCode)
		}
		if len(report.Successful) != 1 {
			t.Errorf("expected the retried page to succeed, got %+v", report.Summary)
		}
	})

	t.Run("records unrecovered failure when login fails", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Location", "/login")
			w.WriteHeader(http.StatusFound)
		}))
		defer server.Close()

		client := &stubClient{
			client: &http.Client{
				CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
					return http.ErrUseLastResponse
				},
			},
			loginRedirect: func(resp *http.Response) bool {
				return resp.StatusCode == http.StatusFound
			},
			loginFunc: func(_ context.Context) error {
				return errors.New("credentials rejected")
			},
		}

		spider, err := NewSpider(client, server.URL,
			WithDelay(0),
			WithSpiderLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create spider: %v", err)
		}

		report := model.NewScanReport(server.URL)
		if err := spider.Crawl(context.Background(), []string{"/protected"}, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.AuthFailures) != 1 {
			t.Fatalf("expected 1 auth failure, got %d", len(report.AuthFailures))
		}
		if report.AuthFailures[0].Recovered {
			t.Error("expected auth failure to be marked unrecovered")
		}
	})
}

// TestNormalizeURL tests URL normalization for deduplication.
func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	spider, err := NewSpider(&stubClient{client: &http.Client{}}, "http://grc.example.com")
	if err != nil {
		t.Fatalf("failed to create spider: %v", err)
	}

	tests := []struct {
		input string
		want  string
	}{
		{"http://grc.example.com", "http://grc.example.com/"},
		{"http://grc.example.com/page#section", "http://grc.example.com/page"},
		{"HTTP://GRC.Example.COM/page", "http://grc.example.com/page"},
		{"http://grc.example.com/page?id=1", "http://grc.example.com/page?id=1"},
	}

	for _, tt := range tests {
		if got := spider.normalizeURL(tt.input); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// TestExceptionResult tests outcome classification for failed fetches.
func TestExceptionResult(t *testing.T) {
	t.Parallel()

	t.Run("deadline exceeded is a timeout", func(t *testing.T) {
		t.Parallel()

		result := exceptionResult("http://grc.example.com/slow", context.DeadlineExceeded)
		if result.Outcome != model.OutcomeTimeout {
			t.Errorf("expected timeout outcome, got %q", result.Outcome)
		}
	})

	t.Run("other errors are transport errors", func(t *testing.T) {
		t.Parallel()

		result := exceptionResult("http://grc.example.com/down", errors.New("connection refused"))
		if result.Outcome != model.OutcomeError {
			t.Errorf("expected error outcome, got %q", result.Outcome)
		}
		if result.Error != "connection refused" {
			t.Errorf("expected error message, got %q", result.Error)
		}
	})
}
