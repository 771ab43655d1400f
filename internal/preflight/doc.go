// Package preflight provides readiness checks for the filesystem paths,
// inputs and export targets devicelink depends on.
//
// These checks run in two contexts:
//   - The CLI "devicelink check" command prints every result.
//   - The "devicelink schedule" command runs them once before starting and
//     refuses to schedule runs that would fail on their first stage.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
