// Package config holds the scanner configuration: CLI-driven options,
// the YAML target file with credentials and known routes, and validation.
package config
