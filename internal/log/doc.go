// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Login credentials and CSRF tokens used during authentication
//   - Secret values detected by pattern matching (passwords, tokens, keys)
//   - Session identifiers and authentication cookies
//
// A scanner that authenticates against its target logs its own requests, so
// even in verbose mode sensitive values are masked to prevent accidental
// exposure of credentials in logs that may be shared or stored.
//
// # Usage
//
//	// Create a secure logger
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	// Use as a standard slog.Logger
//	logger.Info("request sent",
//	    "cookie", "aria_token=abc123",  // Will be sanitized
//	    "url", "http://grc.example.com/dashboard",
//	)
//
//	// Set as default logger
//	slog.SetDefault(logger)
package log
