// Package auth manages the authenticated HTTP session: form-based login
// with CSRF token discovery, cookie persistence across requests, session
// verification, and re-authentication when the session expires.
package auth
