package model

import (
	"strconv"
	"strings"
	"time"
)

// Outcome describes how a page fetch terminated.
// Most fetches complete with an HTTP status code (OutcomeOK), but requests
// can also time out or fail at the transport level before any status code
// is available.
type Outcome string

// Fetch outcomes.
const (
	// OutcomeOK means the request completed and StatusCode is valid.
	OutcomeOK Outcome = "ok"

	// OutcomeTimeout means the request exceeded the configured timeout
	// after all retries. StatusCode is zero.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeError means the request failed at the transport level
	// (DNS failure, connection refused, etc.). StatusCode is zero.
	OutcomeError Outcome = "error"
)

// Bucket classifies a page result by its HTTP status code range.
type Bucket string

// Status-code buckets. Every crawled page lands in exactly one bucket.
const (
	// BucketSuccess holds 2xx responses.
	BucketSuccess Bucket = "2xx"

	// BucketClientError holds 4xx responses.
	BucketClientError Bucket = "4xx"

	// BucketServerError holds 5xx responses.
	BucketServerError Bucket = "5xx"

	// BucketOther holds responses outside the 2xx/4xx/5xx ranges,
	// such as unresolved redirects.
	BucketOther Bucket = "other"

	// BucketException holds fetches that timed out or failed before
	// producing a status code.
	BucketException Bucket = "exception"
)

// PageResult holds everything recorded about a single crawled page.
//
// Design decision: We keep StatusCode and Outcome as separate fields rather
// than a single string value because classification and report generation
// need numeric comparison for the common case, while the exceptional cases
// (timeout, transport error) carry no status code at all.
type PageResult struct {
	// URL is the full URL that was fetched.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	// Zero when Outcome is not OutcomeOK.
	StatusCode int `json:"status_code"`

	// Outcome describes how the fetch terminated.
	Outcome Outcome `json:"outcome"`

	// ContentType is the value of the Content-Type response header.
	ContentType string `json:"content_type,omitempty"`

	// ContentLength is the number of body bytes read.
	ContentLength int `json:"content_length"`

	// ResponseTime is how long the request took.
	ResponseTime time.Duration `json:"response_time_ns"`

	// Title is the page title for HTML responses.
	Title string `json:"title,omitempty"`

	// Links contains same-host URLs discovered on this page.
	// Only populated for successful HTML responses.
	Links []string `json:"links,omitempty"`

	// Endpoints contains AJAX endpoints declared in the page markup.
	// Only populated for successful HTML responses.
	Endpoints []Endpoint `json:"endpoints,omitempty"`

	// Error is the error message for exception outcomes.
	Error string `json:"error,omitempty"`
}

// Endpoint is an AJAX endpoint declared in page markup, such as an hx-get
// attribute or a form action.
type Endpoint struct {
	// URL is the resolved endpoint URL.
	URL string `json:"url"`

	// Method is the HTTP method the markup declares for the endpoint.
	Method string `json:"method"`
}

// Bucket returns the status-code bucket this result belongs to.
func (p *PageResult) Bucket() Bucket {
	if p.Outcome != OutcomeOK {
		return BucketException
	}
	switch {
	case p.StatusCode >= 200 && p.StatusCode < 300:
		return BucketSuccess
	case p.StatusCode >= 400 && p.StatusCode < 500:
		return BucketClientError
	case p.StatusCode >= 500 && p.StatusCode < 600:
		return BucketServerError
	default:
		return BucketOther
	}
}

// IsHTML returns true if the content type indicates an HTML document.
func (p *PageResult) IsHTML() bool {
	return strings.Contains(p.ContentType, "text/html") ||
		strings.Contains(p.ContentType, "application/xhtml+xml")
}

// StatusText returns the status code as display text, substituting the
// outcome for fetches that never produced a status code.
func (p *PageResult) StatusText() string {
	if p.Outcome == OutcomeTimeout {
		return "TIMEOUT"
	}
	if p.Outcome == OutcomeError {
		return "ERROR"
	}
	return strconv.Itoa(p.StatusCode)
}
