// Package main provides the entry point for the authscan CLI.
//
// Authscan is an authenticated crawler for web applications with form-based
// login. It logs in, walks every reachable page, and reports which URLs
// return errors behind authentication.
//
// Usage:
//
//	authscan scan http://grc.example.com
//	authscan scan -c .authscan
//
// See --help for all available options.
package main

// main is the entry point for authscan.
func main() {
	Execute()
}
