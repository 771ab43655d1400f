// Package udimap resolves the distinct raw identifiers cited by event reports
// against the registry.
//
// Identifiers are matched directly against the registry's primary identifiers
// first. Whatever remains is looked up in the registry's secondary identifier
// columns by a chunked scan that never materializes the full registry; a
// secondary identifier resolves only when it points at exactly one distinct
// primary identifier across the whole registry. Everything else is recorded as
// no_match.
package udimap
