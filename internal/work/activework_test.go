package work

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/collective"
)

// fakeTransport is an in-process, single-rank stand-in for
// collective.Transport: every barrier/all-to-all immediately succeeds, as
// if this were the only rank in every subgroup. Good enough to exercise
// ActiveWork's state machine without spinning up HTTP servers.
type fakeTransport struct {
	rank, worldSize int
}

func (f *fakeTransport) WorldSize() int { return f.worldSize }
func (f *fakeTransport) WorldRank() int { return f.rank }

func (f *fakeTransport) Barrier(ctx context.Context, group collective.Group, tag string) error {
	return nil
}

func (f *fakeTransport) Broadcast(ctx context.Context, group collective.Group, root int, tag string, value, out any) error {
	return nil
}

func (f *fakeTransport) AllToAll(ctx context.Context, group collective.Group, tag string, value any) ([]json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(group.Ranks))
	for i := range out {
		out[i] = raw
	}
	return out, nil
}

func (f *fakeTransport) Subgroup(ctx context.Context, ranks []int, name string) (collective.Group, error) {
	id := "test:" + name
	for i, r := range ranks {
		if r == f.rank {
			return collective.Group{ID: id, Ranks: ranks, LocalRank: i}, nil
		}
	}
	return collective.Group{ID: id, Ranks: ranks, LocalRank: -1}, nil
}

func (f *fakeTransport) Disconnect(ctx context.Context, group collective.Group) error { return nil }

func newTestActiveWork(t *testing.T, svc Service, ageLimit time.Duration) *ActiveWork {
	t.Helper()
	transport := &fakeTransport{rank: 0, worldSize: 1}
	dist := cluster.Distribution{Kind: svc.Kind(), Ranks: []int{0}}

	w, err := NewActiveWork(context.Background(), transport, dist, svc, t.TempDir(), nil, nil, nil, ageLimit)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func TestActiveWorkRunsThroughToRunning(t *testing.T) {
	w := newTestActiveWork(t, NewSleepService(cluster.ServiceGeneric, 5*time.Second), time.Hour)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, StateRunning, w.State())
}

func TestActiveWorkStopIsIdempotent(t *testing.T) {
	w := newTestActiveWork(t, NewSleepService(cluster.ServiceGeneric, 5*time.Second), time.Hour)
	require.NoError(t, w.Run(context.Background()))

	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, StateRetired, w.State())

	// Calling Stop again must be a silent no-op: no second barrier call,
	// no error, no panic.
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, StateRetired, w.State())
}

func TestShouldStopForceStopOverridesAge(t *testing.T) {
	w := newTestActiveWork(t, NewSleepService(cluster.ServiceGeneric, 5*time.Second), time.Hour)
	require.NoError(t, w.Run(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(w.ControlDir(), sentinelForceStop), nil, 0o644))

	stop, reason := w.ShouldStop(time.Now())
	assert.True(t, stop)
	assert.Contains(t, reason, "force_stop")
}

func TestShouldStopForceContinueOverridesAgeLimit(t *testing.T) {
	w := newTestActiveWork(t, NewSleepService(cluster.ServiceGeneric, 1*time.Second), 1*time.Millisecond)
	require.NoError(t, w.Run(context.Background()))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(w.ControlDir(), sentinelForceContinue), nil, 0o644))

	stop, reason := w.ShouldStop(time.Now())
	assert.False(t, stop)
	assert.Contains(t, reason, "force_continue")
}

func TestShouldStopAgeLimitExceeded(t *testing.T) {
	w := newTestActiveWork(t, NewSleepService(cluster.ServiceGeneric, 1*time.Second), 1*time.Millisecond)
	require.NoError(t, w.Run(context.Background()))
	time.Sleep(5 * time.Millisecond)

	stop, reason := w.ShouldStop(time.Now())
	assert.True(t, stop)
	assert.Contains(t, reason, "age limit")
}

func TestShouldStopExternalSignal(t *testing.T) {
	w := newTestActiveWork(t, NewSleepService(cluster.ServiceGeneric, 5*time.Second), time.Hour)
	require.NoError(t, w.Run(context.Background()))

	w.RequestStop()
	stop, reason := w.ShouldStop(time.Now())
	assert.True(t, stop)
	assert.Contains(t, reason, "external signal")
}

func TestNewActiveWorkSkipsNonMemberRank(t *testing.T) {
	transport := &fakeTransport{rank: 1, worldSize: 2}
	dist := cluster.Distribution{Kind: cluster.ServiceLocalClient, Ranks: []int{0}}

	w, err := NewActiveWork(context.Background(), transport, dist, NewSleepService(cluster.ServiceLocalClient, time.Second), t.TempDir(), nil, nil, nil, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, w)
}
