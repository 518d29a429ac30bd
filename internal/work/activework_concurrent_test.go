package work

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/collective"
)

// newRealTransportCluster wires up worldSize real collective.HTTPTransports,
// each behind its own httptest.Server, mirroring
// internal/collective's own testCluster helper -- this package can't
// import that unexported type, so it builds the same shape directly.
func newRealTransportCluster(t *testing.T, worldSize int) ([]*collective.HTTPTransport, func()) {
	t.Helper()

	muxes := make([]*http.ServeMux, worldSize)
	servers := make([]*httptest.Server, worldSize)
	for i := 0; i < worldSize; i++ {
		muxes[i] = http.NewServeMux()
		servers[i] = httptest.NewServer(muxes[i])
	}

	rootAddr := servers[0].URL
	transports := make([]*collective.HTTPTransport, worldSize)
	for i := 0; i < worldSize; i++ {
		tr := collective.NewHTTPTransport(i, worldSize, servers[i].URL, rootAddr)
		tr.RegisterHandlers(muxes[i])
		transports[i] = tr
	}

	return transports, func() {
		for _, s := range servers {
			s.Close()
		}
	}
}

// TestActiveWorkConcurrentDistributionsOverSameRanksBothRetire exercises
// spec.md's own literal Scenario B (world_size=3, HDFS and MAPRED both
// ranks=[0,1,2]): two ActiveWorks, one per distribution, run concurrently
// on every rank against the real HTTPTransport/rendezvousPoint. Before
// Subgroup folded the distribution's Kind into its rendezvous key, the
// two distributions' identically-keyed barriers could fold a rank's
// arrival for one distribution into the other's counter, either
// releasing a barrier early or leaving it permanently short of
// arrivals. Both must run through to RUNNING and retire cleanly via
// Stop on every rank.
func TestActiveWorkConcurrentDistributionsOverSameRanksBothRetire(t *testing.T) {
	const worldSize = 3
	transports, closeCluster := newRealTransportCluster(t, worldSize)
	defer closeCluster()

	ranks := []int{0, 1, 2}
	distA := cluster.Distribution{Kind: cluster.ServiceHDFS, Ranks: ranks}
	distB := cluster.Distribution{Kind: cluster.ServiceMapReduce, Ranks: ranks}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 0)
	states := make([]State, 0)
	var mu sync.Mutex

	runOne := func(rank int, dist cluster.Distribution) {
		defer wg.Done()
		svc := NewSleepService(dist.Kind, time.Hour)
		aw, err := NewActiveWork(ctx, transports[rank], dist, svc, t.TempDir(), nil, nil, nil, time.Hour)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("rank %d %s: form: %w", rank, dist.Kind, err))
			mu.Unlock()
			return
		}
		require.NotNil(t, aw)

		if err := aw.Run(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("rank %d %s: run: %w", rank, dist.Kind, err))
			mu.Unlock()
			return
		}
		if err := aw.Stop(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("rank %d %s: stop: %w", rank, dist.Kind, err))
			mu.Unlock()
			return
		}

		mu.Lock()
		states = append(states, aw.State())
		mu.Unlock()
	}

	for _, r := range ranks {
		wg.Add(2)
		go runOne(r, distA)
		go runOne(r, distB)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, states, 2*len(ranks))
	for _, s := range states {
		assert.Equal(t, StateRetired, s)
	}
}
