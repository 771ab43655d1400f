// Package store persists pipeline output in a SQLite database.
//
// Resolved rows live in plain tables with one TEXT column per output column
// (NULL for null cells) plus the chunk index and row position they came from.
// A chunk ledger records which chunks of which stage are durably committed;
// a chunk's rows and its ledger entry are written in one transaction, so a
// rerun skips committed chunks and rewrites a partially written one from
// scratch. Run history, the manufacturer compliance table and match
// statistics are stored alongside.
//
// The database uses WAL mode and may be read while a run is in progress.
package store
