// Package errs defines the error markers shared by every devicelink stage and
// the context annotations used to correlate log lines with a run.
//
// Stage code tags failures with one of the sentinel markers through Wrap so
// the CLI can classify them (bad input versus a retryable store failure)
// without parsing messages.
package errs
