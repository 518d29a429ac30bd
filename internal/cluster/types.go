package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Interface describes one local network interface as discovered by a
// rank's node probe, already placed at its position in the rank's
// preference ordering (ib* first, then non-vlan/non-loopback, then
// remaining non-loopback, then everything else; alphabetical by
// hostname within a tier).
type Interface struct {
	Hostname   string `json:"hostname"`
	IPv4       string `json:"ipv4"`
	Device     string `json:"device"`
	PrefixBits int    `json:"prefix_bits"`
}

// NodeDescriptor is one rank's self-reported snapshot: identity, what it
// can reach on the network, and what it has to run services with. It is
// produced once at rank startup and never mutated afterwards.
type NodeDescriptor struct {
	MemoryMap   map[string]int64 `json:"memory_map"`
	FQDN        string           `json:"fqdn"`
	Interfaces  []Interface      `json:"interfaces"`
	CPUAffinity []int            `json:"cpu_affinity"`
	Topology    []int            `json:"topology"`
	PID         int              `json:"pid"`
	CoreCount   int              `json:"core_count"`
}

// NodeTable is the full set of NodeDescriptors, indexed by rank. Every
// rank holds an identical copy after the startup all-to-all; len(table)
// always equals world size.
type NodeTable []NodeDescriptor

// ServiceKind selects which concrete Service implementation a
// Distribution binds to.
type ServiceKind string

const (
	ServiceHDFS         ServiceKind = "HDFS"
	ServiceMapReduce    ServiceKind = "MAPRED"
	ServiceHBase        ServiceKind = "HBASE"
	ServiceYARN         ServiceKind = "YARN"
	ServiceLocalClient  ServiceKind = "LOCAL_CLIENT"
	ServiceRemoteClient ServiceKind = "REMOTE_CLIENT"
	ServiceGeneric      ServiceKind = "generic"
)

// RunsOn names the rank-subset policy a unit manifest's [Unit].RunsOn
// resolves to.
type RunsOn string

const (
	RunsOnCoordinator RunsOn = "COORDINATOR_ONLY"
	RunsOnWorkers     RunsOn = "WORKERS_ONLY"
	RunsOnAll         RunsOn = "ALL"
)

// SharedValue is the tagged-variant replacement for the original's
// typed host:port / hdfs://... wrapper classes (spec re-architecture
// note: do not reintroduce an inheritance taxonomy for these). Kind
// names what the value represents ("endpoint", "uri", "flag", ...);
// Provenance records which distribution produced it, for diagnostics.
type SharedValue struct {
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	Provenance string `json:"provenance"`
}

// Distribution is one planner output entry: a service kind bound to an
// ordered rank subset, with whatever shared parameters downstream
// distributions need and a record of which other distributions in the
// plan it coexists with (OtherWork; the planner sets OtherWork["Hbase"]
// on the distributions emitted before HBase).
type Distribution struct {
	SharedParams map[string]SharedValue `json:"shared_params"`
	OtherWork    map[string]bool        `json:"other_work,omitempty"`
	Kind         ServiceKind            `json:"kind"`
	DependsOn    []ServiceKind          `json:"depends_on,omitempty"`
	Ranks        []int                  `json:"ranks"`
}

// Plan is the coordinator's frozen, ordered list of Distributions.
// Ordering is significant: a Distribution never precedes one it
// depends on.
type Plan []Distribution

// httpClient is shared by PostJSON and GetJSON, so every call made
// through them reuses one pooled client rather than dialing fresh each
// time.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// PostJSON POSTs body as JSON to url and, if out is non-nil and the
// response is not 204 No Content, decodes the JSON response into it.
// internal/collective does not call it: that package carries its own
// POST helper with a client that has no fixed timeout.
func PostJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: http %d", url, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON GETs url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("get %s: http %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
