package jobstatus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRankMonitor(t *testing.T) {
	m := NewRankMonitor(map[int]string{0: "localhost:8080", 1: "localhost:8081"}, 5*time.Second)
	require.NotNil(t, m)
	assert.Equal(t, 5*time.Second, m.interval)
	assert.Equal(t, 3, m.maxFailures)
	assert.Len(t, m.ranks, 2)
}

func TestRankMonitorRunMarksHealthy(t *testing.T) {
	m := NewRankMonitor(map[int]string{0: "a", 1: "b"}, 50*time.Millisecond)

	var calls int
	var mu sync.Mutex
	m.SetCheckFunction(func(string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	time.Sleep(170 * time.Millisecond)
	cancel()

	mu.Lock()
	seen := calls
	mu.Unlock()
	assert.GreaterOrEqual(t, seen, 4)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "healthy", snap[0].Status)
	assert.Equal(t, "healthy", snap[1].Status)
}

func TestRankMonitorMarksUnhealthyAfterThreshold(t *testing.T) {
	m := NewRankMonitor(map[int]string{0: "a"}, 10*time.Millisecond)
	m.SetCheckFunction(func(string) error { return assertErr })

	var unhealthyRank = -1
	var mu sync.Mutex
	done := make(chan struct{})
	m.SetOnUnhealthy(func(rank int) {
		mu.Lock()
		unhealthyRank = rank
		mu.Unlock()
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onUnhealthy callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, unhealthyRank)
	assert.Equal(t, "unhealthy", m.Snapshot()[0].Status)
}

var assertErr = assertError("health check failed")

type assertError string

func (e assertError) Error() string { return string(e) }
