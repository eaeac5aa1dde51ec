// Package investigate performs follow-up probing of errors found by a
// previous scan: it re-fetches 5xx URLs through the authenticated
// session, inspects response bodies for error indicators, saves raw
// responses for manual review, and classifies 404 paths to suggest
// remediation priorities.
package investigate
