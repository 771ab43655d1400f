// Package device holds the record types that flow through the resolver:
// adverse-event rows, registry rows, resolved rows, and the match-source and
// confidence vocabularies.
//
// All values are strings. An empty string (after trimming) is null; Null and
// Coalesce implement that rule so every package treats absent and blank cells
// the same way.
package device
