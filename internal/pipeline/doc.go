// Package pipeline runs the device identity resolution end to end.
//
// A run is a fixed sequence of stages:
//
//	prepare    open inputs, validate required columns, check the run fingerprint
//	index      build the registry indices
//	normalize  map event manufacturer names onto registry names
//	map        resolve the distinct event identifiers against the registry
//	resolve    resolve event chunks on a worker pool into the staging table
//	fallback   measure manufacturer compliance, then rewrite and grade each
//	           staged chunk into the resolved table
//	export     write resolved chunks as CSV partitions (optional)
//	report     persist and log the match distribution, write metrics
//
// Stages communicate only through explicit artifacts. The chunked stages
// record every committed chunk in the store's ledger, so an interrupted run
// picks up where it stopped when rerun with the same inputs and settings.
package pipeline
