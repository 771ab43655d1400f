// Package relation reads tabular inputs as lazy, finite, restartable sequences
// of row batches.
//
// A Source never materializes its whole input: Scan streams rows from the
// underlying file or table and hands them to the caller one batch at a time.
// Every Scan starts from the first row again, so a stage can make several
// passes over the same input or resume a run by skipping batches it has
// already committed. Batch indices are stable across scans as long as the
// input and batch size are unchanged.
package relation
