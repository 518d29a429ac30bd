// Package probe implements the per-rank Node Probe: it interrogates the
// local host once at rank startup for the facts the rest of the job
// needs (FQDN, reachable network interfaces ranked by preference, usable
// CPU cores, memory) and renders them as a cluster.NodeDescriptor.
//
// Every adapter in this package degrades gracefully: a single bad
// /proc/meminfo line or an interface whose addresses cannot be read is
// logged and skipped (non-IPv4 addresses are skipped silently) rather
// than aborting the probe, because a partial
// descriptor still lets the rest of the job proceed (spec's Discovery
// error class).
package probe
