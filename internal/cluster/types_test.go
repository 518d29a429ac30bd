package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNodeDescriptorJSONRoundTrip(t *testing.T) {
	nd := NodeDescriptor{
		FQDN:        "node1.example.org",
		PID:         4242,
		CPUAffinity: []int{0, 1, 2, 3},
		CoreCount:   4,
		MemoryMap:   map[string]int64{"memtotal": 16 << 20},
		Topology:    []int{0},
		Interfaces: []Interface{
			{Hostname: "node1.example.org", IPv4: "10.0.0.5", Device: "ib0", PrefixBits: 24},
		},
	}

	data, err := json.Marshal(nd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded NodeDescriptor
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.FQDN != nd.FQDN || decoded.PID != nd.PID || decoded.CoreCount != nd.CoreCount {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, nd)
	}
	if len(decoded.Interfaces) != 1 || decoded.Interfaces[0].Device != "ib0" {
		t.Errorf("interfaces not preserved: %+v", decoded.Interfaces)
	}
}

func TestPlanOrderingPreserved(t *testing.T) {
	plan := Plan{
		{Kind: ServiceHDFS, Ranks: []int{0, 1, 2}},
		{Kind: ServiceMapReduce, Ranks: []int{0, 1, 2}, DependsOn: []ServiceKind{ServiceHDFS}},
	}

	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Plan
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Kind != ServiceHDFS || decoded[1].Kind != ServiceMapReduce {
		t.Fatalf("plan ordering not preserved across JSON round trip: %+v", decoded)
	}
}

func TestPostJSON(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverBody     string
		requestBody    any
		expectError    bool
	}{
		{"ok with body", http.StatusOK, `{"status":"ok"}`, map[string]string{"a": "b"}, false},
		{"no content", http.StatusNoContent, "", map[string]string{"a": "b"}, false},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, map[string]string{"a": "b"}, true},
		{"unmarshalable body", http.StatusOK, `{}`, make(chan int), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				w.WriteHeader(tt.serverResponse)
				if tt.serverBody != "" {
					w.Write([]byte(tt.serverBody))
				}
			}))
			defer srv.Close()

			var out map[string]string
			err := PostJSON(context.Background(), srv.URL, tt.requestBody, &out)
			if tt.expectError != (err != nil) {
				t.Fatalf("expectError=%v got err=%v", tt.expectError, err)
			}
		})
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(NodeDescriptor{FQDN: "x", PID: 1})
	}))
	defer srv.Close()

	var nd NodeDescriptor
	if err := GetJSON(context.Background(), srv.URL, &nd); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if nd.FQDN != "x" || nd.PID != 1 {
		t.Errorf("unexpected decode: %+v", nd)
	}
}

func TestGetJSONErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var nd NodeDescriptor
	if err := GetJSON(context.Background(), srv.URL, &nd); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestPostJSONContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	if err := PostJSON(ctx, srv.URL, map[string]string{}, nil); err == nil {
		t.Fatal("expected context deadline error")
	}
}
