package planner

import (
	"fmt"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/logging"
)

var log = logging.WithComponent("planner")

// Options carries the feature toggles and user-provided extras the
// planner's algorithm consults. HDFS is on by default (DisableHDFS turns
// it off); HBase and YARN are off by default.
type Options struct {
	ClientEnvSource  string
	WorkScript       string
	DisableHDFS      bool
	DisableMapReduce bool
	EnableHBase      bool
	EnableYARN       bool
}

const coordinatorRank = 0

// NetworkIndex picks the network interface index common to every node.
// Per spec.md §4.4 this is currently always index 0, relying on every
// node's Interfaces already being sorted by C1's preference order.
func NetworkIndex(nodes cluster.NodeTable) (int, error) {
	for i, n := range nodes {
		if len(n.Interfaces) == 0 {
			return 0, fmt.Errorf("node at rank %d has no interfaces", i)
		}
	}
	return 0, nil
}

// RankSubset implements the runs_on tie-break rule, including the
// world_size==1 edge case where the coordinator is also the only worker.
func RankSubset(runsOn cluster.RunsOn, worldSize int) ([]int, error) {
	if worldSize == 1 {
		return []int{0}, nil
	}
	switch runsOn {
	case cluster.RunsOnCoordinator:
		return []int{coordinatorRank}, nil
	case cluster.RunsOnWorkers:
		ranks := make([]int, 0, worldSize-1)
		for r := 0; r < worldSize; r++ {
			if r != coordinatorRank {
				ranks = append(ranks, r)
			}
		}
		return ranks, nil
	case cluster.RunsOnAll:
		ranks := make([]int, worldSize)
		for r := range ranks {
			ranks[r] = r
		}
		return ranks, nil
	default:
		return nil, fmt.Errorf("unknown runs_on value %q", runsOn)
	}
}

func cloneSharedParams(src map[string]cluster.SharedValue) map[string]cluster.SharedValue {
	out := make(map[string]cluster.SharedValue, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Plan runs the distribution planner's algorithm (spec.md §4.4) over
// nodes and opts, producing a dependency-ordered Plan. nodes must already
// reflect the post-bootstrap NodeTable (spec.md data-flow step 2).
func Plan(nodes cluster.NodeTable, opts Options) (cluster.Plan, error) {
	worldSize := len(nodes)
	if worldSize == 0 {
		return nil, fmt.Errorf("cannot plan against an empty node table")
	}

	if _, err := NetworkIndex(nodes); err != nil {
		return nil, fmt.Errorf("select network index: %w", err)
	}
	networkIdx := 0
	rank0Host := nodes[coordinatorRank].Interfaces[networkIdx].IPv4
	if rank0Host == "" {
		rank0Host = nodes[coordinatorRank].Interfaces[networkIdx].Hostname
	}

	allRanks, err := RankSubset(cluster.RunsOnAll, worldSize)
	if err != nil {
		return nil, err
	}

	var plan cluster.Plan
	hdfsEnabled := !opts.DisableHDFS
	var hdfsShared map[string]cluster.SharedValue

	if hdfsEnabled {
		hdfsShared = map[string]cluster.SharedValue{
			"fs.default.name": {
				Kind:       "uri",
				Value:      fmt.Sprintf("hdfs://%s:8020", rank0Host),
				Provenance: string(cluster.ServiceHDFS),
			},
		}
		plan = append(plan, cluster.Distribution{
			Kind:         cluster.ServiceHDFS,
			Ranks:        allRanks,
			SharedParams: hdfsShared,
		})
	}

	if opts.EnableHBase {
		for i := range plan {
			if plan[i].OtherWork == nil {
				plan[i].OtherWork = make(map[string]bool)
			}
			plan[i].OtherWork["Hbase"] = true
		}

		shared := map[string]cluster.SharedValue{}
		var dependsOn []cluster.ServiceKind
		if hdfsEnabled {
			shared = cloneSharedParams(hdfsShared)
			dependsOn = []cluster.ServiceKind{cluster.ServiceHDFS}
		}
		plan = append(plan, cluster.Distribution{
			Kind:         cluster.ServiceHBase,
			Ranks:        allRanks,
			DependsOn:    dependsOn,
			SharedParams: shared,
		})
	}

	if !opts.DisableMapReduce && !opts.EnableYARN {
		if !hdfsEnabled {
			log.Warn().Msg("mapred requires hdfs but hdfs is disabled; skipping mapred distribution")
		} else {
			shared := cloneSharedParams(hdfsShared)
			shared["mapred.job.tracker"] = cluster.SharedValue{
				Kind:       "endpoint",
				Value:      fmt.Sprintf("%s:9000", rank0Host),
				Provenance: string(cluster.ServiceMapReduce),
			}
			plan = append(plan, cluster.Distribution{
				Kind:         cluster.ServiceMapReduce,
				Ranks:        allRanks,
				DependsOn:    []cluster.ServiceKind{cluster.ServiceHDFS},
				SharedParams: shared,
			})
		}
	}

	if opts.EnableYARN {
		shared := map[string]cluster.SharedValue{}
		var dependsOn []cluster.ServiceKind
		if hdfsEnabled {
			shared = cloneSharedParams(hdfsShared)
			dependsOn = []cluster.ServiceKind{cluster.ServiceHDFS}
		}
		plan = append(plan, cluster.Distribution{
			Kind:         cluster.ServiceYARN,
			Ranks:        allRanks,
			DependsOn:    dependsOn,
			SharedParams: shared,
		})
	}

	coordinatorOnly, err := RankSubset(cluster.RunsOnCoordinator, worldSize)
	if err != nil {
		return nil, err
	}

	plan = append(plan, cluster.Distribution{
		Kind:  cluster.ServiceLocalClient,
		Ranks: coordinatorOnly,
		SharedParams: map[string]cluster.SharedValue{
			"work_script":       {Kind: "flag", Value: opts.WorkScript, Provenance: string(cluster.ServiceLocalClient)},
			"client_env_source": {Kind: "flag", Value: opts.ClientEnvSource, Provenance: string(cluster.ServiceLocalClient)},
		},
	})
	plan = append(plan, cluster.Distribution{
		Kind:  cluster.ServiceRemoteClient,
		Ranks: coordinatorOnly,
	})

	return plan, nil
}
