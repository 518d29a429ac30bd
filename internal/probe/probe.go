package probe

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/logging"
)

var log = logging.WithComponent("probe")

var (
	ibRegexp       = regexp.MustCompile(`^ib\d+$`)
	vlanRegexp     = regexp.MustCompile(`^.*\.\d+$`)
	loopbackRegexp = regexp.MustCompile(`^lo\d*$`)
)

// Probe interrogates the local host and returns its NodeDescriptor. It is
// pure with respect to the host (repeatable, no side effects) and fails
// only when the local hostname cannot be determined: individual
// interface, CPU-affinity or meminfo errors are logged and the
// corresponding entry is simply absent from the result.
func Probe() (cluster.NodeDescriptor, error) {
	fqdn, err := LocalFQDN()
	if err != nil {
		return cluster.NodeDescriptor{}, fmt.Errorf("determine local fqdn: %w", err)
	}

	ifaces := sortInterfaces(rawInterfaces())

	cores, err := usableCPUs()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read CPU affinity, publishing no cores")
		cores = nil
	}

	mem, memErrs := readMemInfo("/proc/meminfo")
	for _, e := range memErrs {
		log.Warn().Err(e).Msg("skipping malformed meminfo entry")
	}

	return cluster.NodeDescriptor{
		FQDN:        fqdn,
		PID:         os.Getpid(),
		CPUAffinity: cores,
		CoreCount:   len(cores),
		MemoryMap:   mem,
		Topology:    []int{0},
		Interfaces:  ifaces,
	}, nil
}

// LocalFQDN best-effort resolves the fully qualified hostname of the
// local machine, falling back to the short hostname if reverse DNS is
// unavailable (common on isolated HPC fabrics). Shared with
// internal/template so that $hostname in a resolved start_cmd/stop_cmd
// always matches the FQDN this rank published in its NodeDescriptor.
func LocalFQDN() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("os.Hostname: %w", err)
	}

	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return hostname, nil
	}
	names, err := net.LookupAddr(addrs[0])
	if err != nil || len(names) == 0 {
		return hostname, nil
	}
	fqdn := names[0]
	for len(fqdn) > 0 && fqdn[len(fqdn)-1] == '.' {
		fqdn = fqdn[:len(fqdn)-1]
	}
	return fqdn, nil
}

// rawInterfaces enumerates every local IPv4-bearing interface. Unusable
// or errored interfaces are skipped with a warning rather than aborting
// the whole probe.
func rawInterfaces() []cluster.Interface {
	ifs, err := net.Interfaces()
	if err != nil {
		log.Warn().Err(err).Msg("failed to enumerate network interfaces")
		return nil
	}

	var out []cluster.Interface
	for _, ifc := range ifs {
		addrs, err := ifc.Addrs()
		if err != nil {
			log.Warn().Err(err).Str("device", ifc.Name).Msg("failed to read interface addresses")
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			prefixBits, _ := ipnet.Mask.Size()
			hostname := ip4.String()
			if names, err := net.LookupAddr(ip4.String()); err == nil && len(names) > 0 {
				hostname = names[0]
			}
			out = append(out, cluster.Interface{
				Hostname:   hostname,
				IPv4:       ip4.String(),
				Device:     ifc.Name,
				PrefixBits: prefixBits,
			})
		}
	}
	return out
}

// sortInterfaces applies the interface-preference ordering invariant:
// ib\d+ devices first, then non-vlan/non-loopback, then remaining
// non-loopback, then everything else, alphabetical by hostname within
// each tier. This must produce identical output for identical input on
// every rank.
func sortInterfaces(ifaces []cluster.Interface) []cluster.Interface {
	sorted := append([]cluster.Interface(nil), ifaces...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hostname < sorted[j].Hostname })

	seen := make(map[int]bool)
	var out []cluster.Interface
	add := func(pred func(string) bool) {
		for i, ifc := range sorted {
			if seen[i] {
				continue
			}
			if pred(ifc.Device) {
				out = append(out, ifc)
				seen[i] = true
			}
		}
	}

	add(func(dev string) bool { return ibRegexp.MatchString(dev) })
	add(func(dev string) bool { return !vlanRegexp.MatchString(dev) && !loopbackRegexp.MatchString(dev) })
	add(func(dev string) bool { return !loopbackRegexp.MatchString(dev) })
	add(func(dev string) bool { return true })

	return out
}

// InterfaceReaching returns the highest-preference local interface whose
// ip/prefix CIDR contains ip, or false if none does. Used to decide which
// interface the coordinator's advertised endpoints should bind to.
func InterfaceReaching(ifaces []cluster.Interface, ip string) (cluster.Interface, bool) {
	target := net.ParseIP(ip)
	if target == nil {
		return cluster.Interface{}, false
	}
	for _, ifc := range ifaces {
		_, network, err := net.ParseCIDR(fmt.Sprintf("%s/%d", ifc.IPv4, ifc.PrefixBits))
		if err != nil {
			continue
		}
		if network.Contains(target) {
			return ifc, true
		}
	}
	return cluster.Interface{}, false
}
