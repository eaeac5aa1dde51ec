package config

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeTarget validates the target base URL and brings it into
// canonical form: scheme added when missing, trailing slash removed.
// An empty target is returned as-is so Validate can report ErrNoTarget.
func NormalizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", nil
	}

	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid target URL %q: scheme must be http or https", target)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid target URL %q: missing host", target)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	return u.String(), nil
}

// File represents the structure of the .authscan configuration file.
// The file describes the single target application: where to log in,
// which credentials to use, and which routes seed the crawl.
type File struct {
	// Target is the base URL of the web application.
	Target string `yaml:"target"`

	// Login describes the authentication endpoints and session cookie.
	Login LoginConfig `yaml:"login,omitempty"`

	// Credentials are login credentials, tried in order.
	Credentials []Credential `yaml:"credentials,omitempty"`

	// Routes seed the crawl queue before link discovery.
	Routes []string `yaml:"routes,omitempty"`

	// SkipPatterns are URL substrings that are never crawled.
	// When set, they replace the built-in defaults.
	SkipPatterns []string `yaml:"skipPatterns,omitempty"`

	// Headers are extra HTTP headers added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// LoginConfig describes the target's form-based authentication.
type LoginConfig struct {
	// LoginPath is the page serving the login form.
	LoginPath string `yaml:"loginPath,omitempty"`

	// AuthPath is the endpoint the login form posts to.
	AuthPath string `yaml:"authPath,omitempty"`

	// VerifyPath is a protected page used to verify the session.
	VerifyPath string `yaml:"verifyPath,omitempty"`

	// SessionCookie is the cookie name that proves authentication.
	SessionCookie string `yaml:"sessionCookie,omitempty"`
}

// Apply merges the file's settings into the config.
// Only non-empty fields override, so CLI flags and defaults survive
// an incomplete file.
func (f *File) Apply(c *Config) {
	if f.Target != "" {
		c.Target = f.Target
	}
	if f.Login.LoginPath != "" {
		c.LoginPath = f.Login.LoginPath
	}
	if f.Login.AuthPath != "" {
		c.AuthPath = f.Login.AuthPath
	}
	if f.Login.VerifyPath != "" {
		c.VerifyPath = f.Login.VerifyPath
	}
	if f.Login.SessionCookie != "" {
		c.SessionCookie = f.Login.SessionCookie
	}
	if len(f.Credentials) > 0 {
		c.Credentials = f.Credentials
	}
	if len(f.Routes) > 0 {
		c.KnownRoutes = f.Routes
	}
	if len(f.SkipPatterns) > 0 {
		c.SkipPatterns = f.SkipPatterns
	}
	if len(f.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range f.Headers {
			c.Headers[k] = v
		}
	}
}
