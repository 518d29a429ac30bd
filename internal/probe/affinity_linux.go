//go:build linux

package probe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// usableCPUs returns the core indices the current process may actually
// run on (its CPU affinity set), not merely the cores configured on the
// host. Mirrors the original's use of sched_getaffinity over the naive
// "count all cores" approach, since HPC batch systems routinely cpuset
// a job to a subset of a node's cores.
func usableCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	// unix.CPUSet covers up to 1024 CPUs regardless of the host's actual
	// core count; IsSet is a safe no-op past the real core count.
	const maxCPUs = 1024
	var cores []int
	for i := 0; i < maxCPUs; i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}
	return cores, nil
}
