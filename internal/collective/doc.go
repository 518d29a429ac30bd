// Package collective implements the Collective Transport: the abstract
// barrier/broadcast/all-to-all/subgroup primitives every rank uses to turn
// itself, plus its peers, into a coordinated job.
//
// The interface (Transport) is deliberately substrate-agnostic, per the
// spec's re-architecture note that collective ops may be modeled as
// suspendable tasks over any group-messaging layer. HTTPTransport is the
// one concrete implementation this repository ships: it generalizes the
// register/broadcast pattern the rest of this codebase's HTTP plumbing
// already uses, rather than introducing a generated RPC stub this module
// cannot regenerate. Rank 0's process additionally hosts the rendezvous
// bookkeeping for Barrier and AllToAll, since it is already the one
// process every rank can reach by a well-known address.
package collective
