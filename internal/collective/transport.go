package collective

import (
	"context"
	"encoding/json"
)

// Group is a collectively-formed subgroup handle (or the world group).
// LocalRank is this process's index within Ranks; it is -1 for a process
// that called Subgroup with a rank list it does not belong to (spec's
// "null handle").
type Group struct {
	ID        string
	Ranks     []int
	LocalRank int
}

// Member reports whether the calling process actually participates in
// this group.
func (g Group) Member() bool { return g.LocalRank >= 0 }

const worldGroupID = "world"

// WorldGroup builds the group handle covering every rank in the job.
func WorldGroup(rank, worldSize int) Group {
	ranks := make([]int, worldSize)
	for i := range ranks {
		ranks[i] = i
	}
	return Group{ID: worldGroupID, Ranks: ranks, LocalRank: rank}
}

// Transport is the abstract group-communication contract every rank's
// work executor is built against. Any substrate error from these ops is
// fatal to the issuing rank (spec's Collective error class) and is
// returned, not retried, by every method here.
type Transport interface {
	WorldSize() int
	WorldRank() int

	// Barrier synchronizes every rank currently in group. tag is a
	// human-readable label; HTTPTransport also folds it into the
	// rendezvous key, so every member must pass the same tag.
	Barrier(ctx context.Context, group Group, tag string) error

	// Broadcast delivers value, submitted once by root, to every other
	// member of group. out is populated on non-root members; root's own
	// copy of value is untouched. On root, value must already be
	// JSON-marshalable; on non-root, out must be a pointer.
	Broadcast(ctx context.Context, group Group, root int, tag string, value, out any) error

	// AllToAll has every member of group submit one value and every
	// member receive the full list, ordered to match group.Ranks.
	AllToAll(ctx context.Context, group Group, tag string, value any) ([]json.RawMessage, error)

	// Subgroup collectively forms a subgroup over ranks. name scopes the
	// resulting Group's rendezvous key so that two logically distinct
	// subgroups formed over an identical rank list (e.g. two
	// Distributions both running on every rank) never share a barrier
	// key; callers should pass something that uniquely identifies the
	// logical subgroup, such as a Distribution's Kind. Every rank in the
	// job must call this with the same (ranks, name) pair for the same
	// logical subgroup; ranks not included receive a Group with
	// LocalRank -1.
	Subgroup(ctx context.Context, ranks []int, name string) (Group, error)

	// Disconnect releases a non-world subgroup's rendezvous bookkeeping.
	Disconnect(ctx context.Context, group Group) error
}
