// Package fallback finishes resolution in two passes over the resolved
// output.
//
// The first pass measures, per canonical manufacturer, the share of reports
// that carry no device identifier at all. Manufacturers whose missing rate
// exceeds the configured threshold are treated as low-compliance. The second
// pass rewrites the device identity of ambiguous and unmatched rows with a
// synthetic identifier and grades every row's confidence, after which no row
// has an empty device_version_id or confidence.
package fallback
