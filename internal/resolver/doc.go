// Package resolver reconciles an identifier's stored name history with the
// external profile source.
//
// A lookup reads the reconciliation metadata, applies the freshness policy,
// and returns the stored history unchanged when it is fresh. Otherwise it
// fetches the current name once, appends it when it differs from the last
// stored name, records the check, and returns the updated history.
//
// # Concurrency
//
// Lookups for the same identifier are collapsed: while one reconciliation is
// in flight, later callers wait for it and receive a copy of its result
// instead of fetching again. The shared work is detached from any single
// caller's cancellation; each caller still stops waiting when its own
// context ends. Lookups for different identifiers are independent.
//
// # Failure
//
// A fetch failure leaves the store untouched. A storage failure after a
// successful append leaves the appended element in place; the next stale
// lookup re-checks and, seeing the same name, only rewrites the metadata.
package resolver
