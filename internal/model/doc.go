// Package model defines the data structures shared across the scanner:
// crawled page results, status-code buckets, and the scan report.
package model
