// Package jobstatus polls a running job's ranks from outside the job
// itself -- it is what cmd/hodctl's "status" subcommand is built on, not
// anything a rank runs against its own peers.
//
// This has no equivalent in spec.md: the spec's own failure semantics
// (§5) are deliberately silent about cross-rank health detection ("a
// single rank's fatal error is not propagated to peers... this is an
// accepted limitation of the collective substrate"). RankMonitor does
// not change that; it exists only for the operator-facing view of a job
// that is already running, polling each rank's /health endpoint the way
// the per-rank HTTP mux already serves one.
package jobstatus
