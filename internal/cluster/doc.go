// Package cluster holds the data model shared by every rank in a hod job:
// the per-node descriptor published during discovery and the planner's
// output (Distribution/Plan), plus plain HTTP+JSON helpers (PostJSON,
// GetJSON). The per-rank active-work bookkeeping lives in internal/work,
// and the collective transport moves these types with its own HTTP code.
//
// None of the types here are rank-specific: a NodeTable built on rank 3
// is byte-for-byte what rank 0 built, because both are assembled from the
// same all-to-all exchange (see internal/collective).
package cluster
