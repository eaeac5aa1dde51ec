package model

import "time"

// ScanReport is the main scan result structure.
// It accumulates every page result produced by the crawl, grouped by
// status-code bucket, plus the authentication failures observed mid-crawl.
//
// Design decision: We store the bucketed lists directly rather than a flat
// list with a computed bucket because every consumer (JSON report, CSV
// error table, console summary) wants the grouped view, and the grouping
// is fixed at classification time.
type ScanReport struct {
	// Target is the base URL of the scanned web application.
	Target string `json:"target"`

	// DateScanned is the timestamp when the scan was performed.
	DateScanned time.Time `json:"date_scanned"`

	// AuthenticatedAs is the username the scan ran under.
	AuthenticatedAs string `json:"authenticated_as,omitempty"`

	// AuthenticatedRole is the role of the authenticated user.
	AuthenticatedRole string `json:"authenticated_role,omitempty"`

	// === Bucketed Results ===

	// Successful holds pages that returned a 2xx status.
	Successful []*PageResult `json:"successful_pages,omitempty"`

	// ClientErrors holds pages that returned a 4xx status.
	ClientErrors []*PageResult `json:"client_errors,omitempty"`

	// ServerErrors holds pages that returned a 5xx status.
	ServerErrors []*PageResult `json:"server_errors,omitempty"`

	// Other holds pages with statuses outside the 2xx/4xx/5xx ranges.
	Other []*PageResult `json:"other,omitempty"`

	// Exceptions holds fetches that timed out or failed at transport level.
	Exceptions []*PageResult `json:"exceptions,omitempty"`

	// === Authentication ===

	// AuthFailures records every request that was bounced back to the
	// login page during the crawl.
	AuthFailures []AuthFailure `json:"authentication_failures,omitempty"`

	// === Discovery ===

	// DiscoveredURLs is every unique URL seen during the crawl, whether
	// or not it was fetched before the page cap was reached.
	DiscoveredURLs []string `json:"discovered_urls,omitempty"`

	// === Scan State ===

	// Interrupted is true if the crawl was cancelled before the queue
	// drained. Bucketed results are still valid partial data.
	Interrupted bool `json:"interrupted"`

	// Error contains any error that aborted the scan.
	Error error `json:"-"` // Excluded from JSON

	// ErrorMessage is the string representation of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// Summary holds the derived counts for quick review.
	Summary *Summary `json:"summary,omitempty"`
}

// AuthFailure records a request that was redirected back to the login page,
// indicating the session had expired or was rejected.
type AuthFailure struct {
	// URL is the request URL that triggered the redirect.
	URL string `json:"url"`

	// StatusCode is the redirect status code (typically 302).
	StatusCode int `json:"status_code"`

	// Timestamp is when the failure was observed.
	Timestamp time.Time `json:"timestamp"`

	// Recovered is true if re-authentication succeeded afterwards.
	Recovered bool `json:"recovered"`
}

// Summary contains the derived counts of a scan for quick review.
type Summary struct {
	// Target is the scanned base URL.
	Target string `json:"target"`

	// DateScanned is when the scan was performed.
	DateScanned time.Time `json:"date_scanned"`

	// PagesCrawled is the number of pages actually fetched.
	PagesCrawled int `json:"pages_crawled"`

	// URLsDiscovered is the number of unique URLs seen.
	URLsDiscovered int `json:"urls_discovered"`

	// SuccessCount is the number of 2xx responses.
	SuccessCount int `json:"success_count"`

	// ClientErrorCount is the number of 4xx responses.
	ClientErrorCount int `json:"client_error_count"`

	// ServerErrorCount is the number of 5xx responses.
	ServerErrorCount int `json:"server_error_count"`

	// OtherCount is the number of responses outside the tracked ranges.
	OtherCount int `json:"other_count"`

	// ExceptionCount is the number of timeouts and transport failures.
	ExceptionCount int `json:"exception_count"`

	// AuthFailureCount is the number of login redirects observed.
	AuthFailureCount int `json:"auth_failure_count"`

	// Interrupted mirrors ScanReport.Interrupted.
	Interrupted bool `json:"interrupted"`

	// Error mirrors ScanReport.ErrorMessage.
	Error string `json:"error,omitempty"`
}

// NewScanReport creates a new report for the given target.
func NewScanReport(target string) *ScanReport {
	return &ScanReport{
		Target:      target,
		DateScanned: time.Now(),
	}
}

// AddResult classifies a page result into its bucket.
func (r *ScanReport) AddResult(result *PageResult) {
	switch result.Bucket() {
	case BucketSuccess:
		r.Successful = append(r.Successful, result)
	case BucketClientError:
		r.ClientErrors = append(r.ClientErrors, result)
	case BucketServerError:
		r.ServerErrors = append(r.ServerErrors, result)
	case BucketException:
		r.Exceptions = append(r.Exceptions, result)
	default:
		r.Other = append(r.Other, result)
	}
}

// AddAuthFailure records an authentication failure.
func (r *ScanReport) AddAuthFailure(failure AuthFailure) {
	r.AuthFailures = append(r.AuthFailures, failure)
}

// PagesCrawled returns the total number of fetched pages across buckets.
func (r *ScanReport) PagesCrawled() int {
	return len(r.Successful) + len(r.ClientErrors) + len(r.ServerErrors) +
		len(r.Other) + len(r.Exceptions)
}

// ErrorPages returns the total number of non-2xx results.
func (r *ScanReport) ErrorPages() int {
	return len(r.ClientErrors) + len(r.ServerErrors) + len(r.Other) + len(r.Exceptions)
}

// Results returns all page results in bucket order.
// The order is stable: 2xx, 4xx, 5xx, other, exceptions.
func (r *ScanReport) Results() []*PageResult {
	out := make([]*PageResult, 0, r.PagesCrawled())
	out = append(out, r.Successful...)
	out = append(out, r.ClientErrors...)
	out = append(out, r.ServerErrors...)
	out = append(out, r.Other...)
	out = append(out, r.Exceptions...)
	return out
}

// ErrorResults returns all non-2xx page results in bucket order.
func (r *ScanReport) ErrorResults() []*PageResult {
	out := make([]*PageResult, 0, r.ErrorPages())
	out = append(out, r.ClientErrors...)
	out = append(out, r.ServerErrors...)
	out = append(out, r.Other...)
	out = append(out, r.Exceptions...)
	return out
}

// NewSummary derives the summary counts from the report.
func NewSummary(r *ScanReport) *Summary {
	s := &Summary{
		Target:           r.Target,
		DateScanned:      r.DateScanned,
		PagesCrawled:     r.PagesCrawled(),
		URLsDiscovered:   len(r.DiscoveredURLs),
		SuccessCount:     len(r.Successful),
		ClientErrorCount: len(r.ClientErrors),
		ServerErrorCount: len(r.ServerErrors),
		OtherCount:       len(r.Other),
		ExceptionCount:   len(r.Exceptions),
		AuthFailureCount: len(r.AuthFailures),
		Interrupted:      r.Interrupted,
	}
	if r.Error != nil {
		s.Error = r.Error.Error()
	} else if r.ErrorMessage != "" {
		s.Error = r.ErrorMessage
	}
	return s
}

// Finalize derives the summary and fills the serializable error message.
// Call this once the crawl has finished, before writing reports.
func (r *ScanReport) Finalize() {
	if r.Error != nil {
		r.ErrorMessage = r.Error.Error()
	}
	r.Summary = NewSummary(r)
}
