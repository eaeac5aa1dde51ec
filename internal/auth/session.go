package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/aria5/authscan/internal/config"
	"github.com/aria5/authscan/internal/crawler"
)

// ErrAuthenticationFailed is returned when no configured credential set
// produces an authenticated session.
var ErrAuthenticationFailed = errors.New("authentication failed for all configured credentials")

// maxLoginBodySize caps the bytes read from login-related responses.
// Login pages are small; this only guards against pathological responses.
const maxLoginBodySize = 1 * 1024 * 1024 // 1MB

// Session is an authenticated HTTP session against the target application.
// It owns the cookie jar, performs form-based login, and re-authenticates
// when the server bounces a request back to the login page.
//
// Design decision: The session wraps two http.Clients sharing one cookie
// jar. The main client follows redirects except those landing on the login
// page, so callers observe session expiry as a 302 response instead of
// silently crawling the login form. The bare client never follows
// redirects and is used for session verification.
type Session struct {
	// client follows redirects except those targeting the login page.
	client *http.Client

	// bare never follows redirects. Used by Verify.
	bare *http.Client

	// baseURL is the target application's base URL.
	baseURL *url.URL

	// credentials are tried in order during Login.
	credentials []config.Credential

	// loginPath is the page serving the login form.
	loginPath string

	// authPath is the endpoint the login form posts to.
	authPath string

	// verifyPath is a protected page used to verify the session.
	verifyPath string

	// cookieName is the session cookie that proves authentication.
	cookieName string

	// userAgent is sent with every request.
	userAgent string

	// headers are extra headers added to every request.
	headers map[string]string

	// logger is used for structured logging.
	logger *slog.Logger

	// current is the credential set that last authenticated successfully.
	current *config.Credential
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout sets the per-request timeout on both HTTP clients.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.client.Timeout = d
		s.bare.Timeout = d
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Session) {
		s.userAgent = ua
	}
}

// WithHeaders sets extra headers added to every request.
func WithHeaders(headers map[string]string) Option {
	return func(s *Session) {
		s.headers = headers
	}
}

// WithLoginEndpoints overrides the login form page, the credential POST
// endpoint, and the protected verification page.
func WithLoginEndpoints(loginPath, authPath, verifyPath string) Option {
	return func(s *Session) {
		s.loginPath = loginPath
		s.authPath = authPath
		s.verifyPath = verifyPath
	}
}

// WithSessionCookie sets the cookie name that proves authentication.
func WithSessionCookie(name string) Option {
	return func(s *Session) {
		s.cookieName = name
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session for the given target base URL.
func NewSession(target string, credentials []config.Credential, opts ...Option) (*Session, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("target URL must be http or https: %s", target)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	s := &Session{
		baseURL:     base,
		credentials: credentials,
		loginPath:   config.DefaultLoginPath,
		authPath:    config.DefaultAuthPath,
		verifyPath:  config.DefaultVerifyPath,
		cookieName:  config.DefaultSessionCookie,
		userAgent:   config.DefaultUserAgent,
		logger:      slog.Default(),
	}

	s.client = &http.Client{
		Jar:     jar,
		Timeout: config.DefaultTimeout,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			// Surface session expiry as a 302 instead of following it
			// onto the login form.
			if strings.Contains(req.URL.Path, s.loginPath) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	s.bare = &http.Client{
		Jar:     jar,
		Timeout: config.DefaultTimeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// BaseURL returns the target base URL.
func (s *Session) BaseURL() *url.URL {
	return s.baseURL
}

// CurrentUser returns the username and role of the credential set that
// last authenticated successfully. Both are empty before Login succeeds.
func (s *Session) CurrentUser() (username, role string) {
	if s.current == nil {
		return "", ""
	}
	return s.current.Username, s.current.Role
}

// Login authenticates with the configured credentials, trying each set in
// order. It returns ErrAuthenticationFailed if none succeeds.
func (s *Session) Login(ctx context.Context) error {
	for i := range s.credentials {
		cred := &s.credentials[i]
		ok, err := s.loginWith(ctx, cred)
		if err != nil {
			s.logger.Warn("login attempt errored", "username", cred.Username, "error", err)
			continue
		}
		if ok {
			s.current = cred
			s.logger.Info("authenticated", "username", cred.Username, "role", cred.Role)
			return nil
		}
		s.logger.Warn("login rejected", "username", cred.Username)
	}
	return ErrAuthenticationFailed
}

// loginWith performs the form-based login flow for one credential set:
// fetch the login page, extract the CSRF token if present, post the
// credentials, and verify the result.
func (s *Session) loginWith(ctx context.Context, cred *config.Credential) (bool, error) {
	loginURL := s.resolve(s.loginPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return false, err
	}
	s.setCommonHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch login page: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("login page returned status %d", resp.StatusCode)
	}

	// The login page may embed an anti-forgery token in a meta tag or a
	// hidden input. Absent token fields are simply omitted from the POST.
	csrfToken := s.extractCSRFToken(loginURL, body)

	form := url.Values{}
	form.Set("username", cred.Username)
	form.Set("password", cred.Password)
	if csrfToken != "" {
		form.Set("csrf_token", csrfToken)
	}

	authURL := s.resolve(s.authPath)
	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	s.setCommonHeaders(postReq)
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.Header.Set("Referer", loginURL)
	postReq.Header.Set("X-Requested-With", "XMLHttpRequest")

	authResp, err := s.client.Do(postReq)
	if err != nil {
		return false, fmt.Errorf("login request failed: %w", err)
	}
	authBody, err := readBody(authResp)
	if err != nil {
		return false, err
	}

	return s.loginSucceeded(authResp, authBody), nil
}

// loginSucceeded checks the three accepted proofs of authentication:
// the session cookie, a redirect that landed on the protected area, or a
// success page mentioning the dashboard.
func (s *Session) loginSucceeded(resp *http.Response, body []byte) bool {
	if s.HasSessionCookie() {
		return true
	}
	if resp.Request != nil && strings.Contains(resp.Request.URL.Path, s.verifyPath) {
		return true
	}
	if resp.StatusCode == http.StatusOK {
		lower := strings.ToLower(string(body))
		if strings.Contains(lower, "dashboard") || strings.Contains(lower, "welcome") {
			return true
		}
	}
	return false
}

// extractCSRFToken parses the login page for an anti-forgery token.
func (s *Session) extractCSRFToken(pageURL string, body []byte) string {
	parser, err := crawler.NewParser(pageURL)
	if err != nil {
		return ""
	}
	result, err := parser.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	return result.CSRFToken
}

// Verify checks whether the current session is still authenticated by
// requesting the protected verification page without following redirects.
// A 200 means authenticated; a redirect to the login page means not.
// Other redirects are treated as authenticated, matching how the target
// routes logged-in users between areas.
func (s *Session) Verify(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resolve(s.verifyPath), nil)
	if err != nil {
		return false, err
	}
	s.setCommonHeaders(req)

	resp, err := s.bare.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLoginBodySize)) //nolint:errcheck // Drain for connection reuse

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return !strings.Contains(resp.Header.Get("Location"), s.loginPath), nil
	default:
		return false, nil
	}
}

// Get performs an authenticated GET request.
// Redirects are followed except those landing on the login page, which are
// returned as-is so the caller can detect session expiry.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	s.setCommonHeaders(req)
	return s.client.Do(req)
}

// IsLoginRedirect reports whether the response is a redirect back to the
// login page, the signal that the session has expired.
func (s *Session) IsLoginRedirect(resp *http.Response) bool {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return false
	}
	return strings.Contains(resp.Header.Get("Location"), s.loginPath)
}

// HasSessionCookie reports whether the jar holds the session cookie.
func (s *Session) HasSessionCookie() bool {
	for _, c := range s.client.Jar.Cookies(s.baseURL) {
		if c.Name == s.cookieName {
			return true
		}
	}
	return false
}

// resolve joins a path with the base URL.
func (s *Session) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return s.baseURL.String() + path
	}
	return s.baseURL.ResolveReference(ref).String()
}

// setCommonHeaders applies the headers sent with every request.
func (s *Session) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
}

// readBody reads and closes a response body with a size limit.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxLoginBodySize))
}
