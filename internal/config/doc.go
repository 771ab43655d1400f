// Package config loads, normalizes, and validates devicelink configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and picks up object-storage credentials from
// DEVICELINK_S3_* environment variables (optionally provided through a .env
// file). The Config type centralizes every knob the resolver pipeline and CLI
// need: input locations, column mapping, matching thresholds, chunking, and
// export targets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
