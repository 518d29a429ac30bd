package collective

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/metrics"
)

// rendezvousClient has no fixed timeout: a barrier or all-to-all may
// legitimately block for as long as the slowest peer takes to arrive.
// Cancellation is the caller's context, not a clock.
var rendezvousClient = &http.Client{}

// HTTPTransport implements Transport over plain net/http + encoding/json.
// Rank 0's process hosts the rendezvous bookkeeping for Barrier and
// AllToAll (every rank already knows how to reach rank 0); Broadcast is
// a direct push from root to every other member, fanned out
// concurrently with errgroup.
type HTTPTransport struct {
	rendez    *rendezvousPoint
	inbox     map[string]chan json.RawMessage
	selfAddr  string
	rootAddr  string
	peerAddrs []string
	mu        sync.Mutex
	rank      int
	worldSize int
}

// NewHTTPTransport builds a transport for the given rank. selfAddr is
// this process's own advertised base URL (used by root to push
// broadcasts to it); rootAddr is rank 0's base URL (used by every
// non-root rank to reach the rendezvous point).
func NewHTTPTransport(rank, worldSize int, selfAddr, rootAddr string) *HTTPTransport {
	t := &HTTPTransport{
		rank:      rank,
		worldSize: worldSize,
		selfAddr:  selfAddr,
		rootAddr:  rootAddr,
		inbox:     make(map[string]chan json.RawMessage),
	}
	if rank == 0 {
		t.rendez = newRendezvousPoint()
	}
	return t
}

func (t *HTTPTransport) WorldSize() int { return t.worldSize }
func (t *HTTPTransport) WorldRank() int { return t.rank }

// RegisterHandlers wires this transport's rendezvous and broadcast
// endpoints onto mux. Every rank calls this once at startup; the
// barrier/all-to-all handlers simply refuse requests on non-root ranks.
func (t *HTTPTransport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/collective/barrier", t.handleBarrier)
	mux.HandleFunc("/collective/alltoall", t.handleAllToAll)
	mux.HandleFunc("/collective/broadcast/deliver", t.handleBroadcastDeliver)
}

type barrierRequest struct {
	Key  string `json:"key"`
	Rank int    `json:"rank"`
	Want int    `json:"want"`
}

type alltoallRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Rank  int             `json:"rank"`
	Want  int             `json:"want"`
}

type alltoallResponse struct {
	Values map[int]json.RawMessage `json:"values"`
}

type broadcastDeliverRequest struct {
	Tag   string          `json:"tag"`
	Value json.RawMessage `json:"value"`
}

// discoveryPayload is the value every rank submits to the bootstrap
// all-to-all: its own node descriptor plus the address peers should use
// to reach it for subsequent broadcasts.
type discoveryPayload struct {
	Addr       string                `json:"addr"`
	Descriptor cluster.NodeDescriptor `json:"descriptor"`
}

func (t *HTTPTransport) handleBarrier(w http.ResponseWriter, r *http.Request) {
	if t.rank != 0 {
		http.Error(w, "not the collective coordinator", http.StatusServiceUnavailable)
		return
	}
	var req barrierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	t.rendez.arrive(req.Key, req.Rank, req.Want, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (t *HTTPTransport) handleAllToAll(w http.ResponseWriter, r *http.Request) {
	if t.rank != 0 {
		http.Error(w, "not the collective coordinator", http.StatusServiceUnavailable)
		return
	}
	var req alltoallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	values := t.rendez.arrive(req.Key, req.Rank, req.Want, req.Value)
	if err := json.NewEncoder(w).Encode(alltoallResponse{Values: values}); err != nil {
		return
	}
}

func (t *HTTPTransport) handleBroadcastDeliver(w http.ResponseWriter, r *http.Request) {
	var req broadcastDeliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	t.mu.Lock()
	ch, ok := t.inbox[req.Tag]
	if !ok {
		ch = make(chan json.RawMessage, 1)
		t.inbox[req.Tag] = ch
	}
	t.mu.Unlock()
	ch <- req.Value
	w.WriteHeader(http.StatusNoContent)
}

// Barrier implements Transport.Barrier.
func (t *HTTPTransport) Barrier(ctx context.Context, group Group, tag string) error {
	if !group.Member() {
		return nil
	}
	started := time.Now()
	defer func() {
		metrics.CollectiveBarrierDuration.WithLabelValues(tag).Observe(time.Since(started).Seconds())
	}()

	key := group.ID + "|" + tag
	want := len(group.Ranks)

	if t.rank == 0 {
		t.rendez.arrive(key, t.rank, want, nil)
		return nil
	}
	req := barrierRequest{Key: key, Rank: t.rank, Want: want}
	if err := t.postJSON(ctx, t.rootAddr+"/collective/barrier", req, nil); err != nil {
		return fmt.Errorf("barrier %q: %w", tag, err)
	}
	return nil
}

// AllToAll implements Transport.AllToAll.
func (t *HTTPTransport) AllToAll(ctx context.Context, group Group, tag string, value any) ([]json.RawMessage, error) {
	if !group.Member() {
		return nil, fmt.Errorf("rank %d is not a member of group %s", t.rank, group.ID)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal all-to-all value: %w", err)
	}

	key := group.ID + "|" + tag
	want := len(group.Ranks)

	var values map[int]json.RawMessage
	if t.rank == 0 {
		values = t.rendez.arrive(key, t.rank, want, raw)
	} else {
		req := alltoallRequest{Key: key, Rank: t.rank, Want: want, Value: raw}
		var resp alltoallResponse
		if err := t.postJSON(ctx, t.rootAddr+"/collective/alltoall", req, &resp); err != nil {
			return nil, fmt.Errorf("all-to-all %q: %w", tag, err)
		}
		values = resp.Values
	}

	out := make([]json.RawMessage, len(group.Ranks))
	for i, rank := range group.Ranks {
		out[i] = values[rank]
	}
	return out, nil
}

// Broadcast implements Transport.Broadcast: root fans its value out
// concurrently to every other member and returns once all deliveries are
// acknowledged; non-root members block until their delivery arrives.
func (t *HTTPTransport) Broadcast(ctx context.Context, group Group, root int, tag string, value, out any) error {
	if !group.Member() {
		return nil
	}

	if t.rank == root {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal broadcast value: %w", err)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, rank := range group.Ranks {
			if rank == root {
				continue
			}
			rank := rank
			g.Go(func() error {
				addr := t.peerAddr(rank)
				if addr == "" {
					return fmt.Errorf("no known address for rank %d", rank)
				}
				req := broadcastDeliverRequest{Tag: tag, Value: raw}
				if err := t.postJSON(gctx, addr+"/collective/broadcast/deliver", req, nil); err != nil {
					return fmt.Errorf("broadcast to rank %d: %w", rank, err)
				}
				return nil
			})
		}
		return g.Wait()
	}

	t.mu.Lock()
	ch, ok := t.inbox[tag]
	if !ok {
		ch = make(chan json.RawMessage, 1)
		t.inbox[tag] = ch
	}
	t.mu.Unlock()

	select {
	case raw := <-ch:
		if out == nil {
			return nil
		}
		return json.Unmarshal(raw, out)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subgroup implements Transport.Subgroup. Every rank must call this with
// the same (ranks, name) pair; members additionally pass through a
// barrier so the subgroup is only considered formed once every member
// has joined. name is folded into the Group's ID so that two distinct
// logical subgroups sharing an identical rank list never collide on the
// same rendezvous key (see rendezvousPoint.arrive).
func (t *HTTPTransport) Subgroup(ctx context.Context, ranks []int, name string) (Group, error) {
	sorted := append([]int(nil), ranks...)
	sort.Ints(sorted)

	localRank := -1
	for i, r := range sorted {
		if r == t.rank {
			localRank = i
		}
	}
	group := Group{ID: fmt.Sprintf("sub:%s:%v", name, sorted), Ranks: sorted, LocalRank: localRank}

	if group.Member() {
		if err := t.Barrier(ctx, group, "subgroup-form"); err != nil {
			return Group{}, fmt.Errorf("form subgroup %s: %w", group.ID, err)
		}
	}
	return group, nil
}

// Disconnect implements Transport.Disconnect.
func (t *HTTPTransport) Disconnect(ctx context.Context, group Group) error {
	if group.ID == worldGroupID {
		return fmt.Errorf("cannot disconnect the world group")
	}
	if !group.Member() {
		return nil
	}
	return t.Barrier(ctx, group, "subgroup-disconnect")
}

// Bootstrap performs the one startup all-to-all (spec data-flow step 2):
// every rank submits its own descriptor plus its reachable address, and
// every rank gets back the full NodeTable. It also caches peer
// addresses so later Broadcast calls know where to push.
func (t *HTTPTransport) Bootstrap(ctx context.Context, self cluster.NodeDescriptor) (cluster.NodeTable, error) {
	world := WorldGroup(t.rank, t.worldSize)
	raws, err := t.AllToAll(ctx, world, "discover", discoveryPayload{Addr: t.selfAddr, Descriptor: self})
	if err != nil {
		return nil, fmt.Errorf("discovery all-to-all: %w", err)
	}

	table := make(cluster.NodeTable, len(raws))
	addrs := make([]string, len(raws))
	for i, raw := range raws {
		var p discoveryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode descriptor from rank %d: %w", i, err)
		}
		table[i] = p.Descriptor
		addrs[i] = p.Addr
	}

	t.mu.Lock()
	t.peerAddrs = addrs
	t.mu.Unlock()
	return table, nil
}

func (t *HTTPTransport) peerAddr(rank int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rank >= 0 && rank < len(t.peerAddrs) {
		return t.peerAddrs[rank]
	}
	return ""
}

func (t *HTTPTransport) postJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", url, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rendezvousClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: http %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
