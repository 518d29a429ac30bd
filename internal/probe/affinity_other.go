//go:build !linux

package probe

import "runtime"

// usableCPUs falls back to reporting every core Go's runtime knows about
// on platforms without sched_getaffinity; hod's supported deployment
// target is Linux HPC clusters, so this path exists only so the package
// builds elsewhere, not as a faithful affinity readout.
func usableCPUs() ([]int, error) {
	cores := make([]int, runtime.NumCPU())
	for i := range cores {
		cores[i] = i
	}
	return cores, nil
}
