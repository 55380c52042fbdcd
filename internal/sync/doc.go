// Package sync implements the per-repository synchronization pass.
//
// A pass resolves the repository's access credential, fetches its activity
// from the provider starting at the last successful fetch, and hands every
// event to the writer, which deduplicates on the event's natural key.
//
// # Failures
//
// Every failure is reported as an *Error carrying the Stage that failed and a
// Kind describing why. Failures stay local to the repository, with one
// exception: a writer.ErrInvariantViolation is Fatal and aborts the batch.
//
// The sync/coordinator subpackage runs passes for many repositories in
// parallel, aggregates their results and advances staleness timestamps.
package sync
