package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values mirror the scanner's original operating parameters against
// the target platform and can all be overridden via CLI flags or the
// configuration file.
const (
	// DefaultTimeout is the per-request timeout. 15 seconds covers slow
	// edge-rendered pages without stalling the whole crawl on one URL.
	DefaultTimeout = 15 * time.Second

	// DefaultRequestDelay is the politeness delay between requests.
	// 1 second is conservative and keeps the scanner from competing with
	// real traffic on the target.
	DefaultRequestDelay = 1 * time.Second

	// DefaultMaxPages is the hard cap on pages fetched per scan.
	// This prevents runaway crawling on pages that generate links
	// dynamically.
	DefaultMaxPages = 200

	// DefaultMaxRetries is how many times a timed-out or failed request
	// is attempted before it is recorded as an exception.
	DefaultMaxRetries = 3

	// DefaultMaxBodySize limits the response body bytes read per page.
	// 5MB is ample for HTML while bounding memory use.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultUserAgent identifies the scanner in target access logs.
	DefaultUserAgent = "authscan/1.0 (authenticated security scanning)"

	// DefaultLoginPath is the page that serves the login form.
	DefaultLoginPath = "/login"

	// DefaultAuthPath is the endpoint the login form posts to.
	DefaultAuthPath = "/auth/login"

	// DefaultVerifyPath is a protected page used to verify the session.
	// An unauthenticated request to it must redirect to the login page.
	DefaultVerifyPath = "/dashboard"

	// DefaultSessionCookie is the cookie name that proves authentication.
	DefaultSessionCookie = "aria_token"

	// AppName is the application name used for XDG directory paths.
	AppName = "authscan"
)

// DefaultSkipPatterns are URL substrings that are never crawled: static
// assets, logout endpoints (which would kill the session), and non-HTTP
// schemes that leak into href attributes.
var DefaultSkipPatterns = []string{
	".pdf", ".jpg", ".png", ".gif", ".css", ".js", ".ico",
	"/logout", "/api/logout", "javascript:", "mailto:",
	"#", "data:",
}

// Credential is one username/password pair the scanner may authenticate with.
// Credentials are tried in order until one succeeds.
type Credential struct {
	// Username is the login name.
	Username string `yaml:"username"`

	// Password is the login password.
	Password string `yaml:"password"`

	// Role is a free-form label recorded in the report.
	Role string `yaml:"role,omitempty"`
}

// Config holds all configuration options for a scan.
// It is populated from CLI flags and the YAML target file and passed
// through the application via dependency injection rather than global state.
type Config struct {
	// Target is the base URL of the web application to scan.
	Target string

	// Credentials are the login credentials, tried in order.
	Credentials []Credential

	// KnownRoutes seed the crawl queue before any links are discovered.
	// Paths are resolved against Target.
	KnownRoutes []string

	// SkipPatterns are lowercase substrings; a URL containing any of
	// them is never fetched.
	SkipPatterns []string

	// Headers are extra HTTP headers added to every request.
	Headers map[string]string

	// LoginPath is the page serving the login form.
	LoginPath string

	// AuthPath is the endpoint the login form posts to.
	AuthPath string

	// VerifyPath is a protected page used to verify the session.
	VerifyPath string

	// SessionCookie is the cookie name that proves authentication.
	SessionCookie string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestDelay is the politeness delay between requests.
	RequestDelay time.Duration

	// MaxPages caps the number of pages fetched.
	MaxPages int

	// MaxRetries is the attempt count for timed-out or failed requests.
	MaxRetries int

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Verbose enables slog.LevelDebug output.
	Verbose bool

	// JSONReport selects JSON report output instead of the console summary.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to this path instead of stdout.
	ReportFile string

	// CSVFile, when set, additionally writes the flat error table to this
	// path for spreadsheet review.
	CSVFile string

	// ConfigFilePath is the explicit path of the YAML target file.
	// If empty, .authscan is searched in the current and home directories.
	ConfigFilePath string

	// DBDir is the directory for the SQLite scan history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether to persist results to the database.
	SaveToDB bool

	// SkipRecent skips the scan when the target was already crawled
	// within this window. Zero disables the check.
	SkipRecent time.Duration
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor instead of relying on zero values
// because most defaults are non-zero, and the constructor documents them.
func NewConfig() *Config {
	return &Config{
		LoginPath:     DefaultLoginPath,
		AuthPath:      DefaultAuthPath,
		VerifyPath:    DefaultVerifyPath,
		SessionCookie: DefaultSessionCookie,
		SkipPatterns:  append([]string(nil), DefaultSkipPatterns...),
		Timeout:       DefaultTimeout,
		RequestDelay:  DefaultRequestDelay,
		MaxPages:      DefaultMaxPages,
		MaxRetries:    DefaultMaxRetries,
		MaxBodySize:   DefaultMaxBodySize,
		UserAgent:     DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for authscan.
// On Linux: ~/.local/share/authscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for authscan.
// On Linux: ~/.config/authscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first error found; fixing one error often makes the
// rest irrelevant.
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrNoTarget
	}
	if len(c.Credentials) == 0 {
		return ErrNoCredentials
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}
