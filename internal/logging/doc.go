// Package logging builds the slog loggers devicelink writes through.
//
// New returns a console (key=value) or JSON logger over stdout and optional
// log files. Stage code tags lines with run, stage and chunk fields taken from
// the context via WithContext. Every pipeline run also gets its own JSON file,
// opened with OpenRunLog and attached next to the process logger; PruneRunLogs
// removes old ones.
package logging
