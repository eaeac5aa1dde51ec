// Package crawler implements the breadth-first authenticated crawl:
// a sequential spider driven by a FIFO queue and a discovered-URL set,
// and an HTML parser that extracts anchors, form actions, and
// framework-specific endpoint hints.
package crawler
