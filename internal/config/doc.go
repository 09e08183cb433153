// Package config loads, normalizes, and validates vertclip configuration.
//
// Values come from repository defaults, an optional TOML file and a handful
// of environment variables for provider credentials. CLI flags are applied by
// the caller before Validate. Downstream code receives cleaned paths and
// enum values that have already been parsed once.
package config
