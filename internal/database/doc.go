// Package database provides SQLite-backed persistence for page fetch
// results, discovered endpoints, and complete scan reports. It uses the
// pure-Go modernc.org/sqlite driver so no cgo is required.
package database
