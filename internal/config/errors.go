package config

import "errors"

// Configuration validation errors.
// These are package-level sentinel errors so callers can use errors.Is()
// for programmatic handling while still getting readable messages.
var (
	// ErrNoTarget is returned when no target base URL is configured.
	ErrNoTarget = errors.New("no target specified: provide a base URL via --target or the config file")

	// ErrNoCredentials is returned when no login credentials are configured.
	// The scanner cannot operate unauthenticated.
	ErrNoCredentials = errors.New("no credentials configured: add at least one username/password to the config file")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRequestDelay is returned when the request delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidRequestDelay = errors.New("invalid request delay: must be non-negative")

	// ErrInvalidMaxPages is returned when the page cap is not positive.
	// A cap of zero would mean no crawling at all.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidMaxRetries is returned when the retry count is not positive.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to apply the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
