package template

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hpcugent/hod/internal/probe"
)

// Thunk is a nullary computation resolved only when a placeholder is
// actually substituted, not when the dictionary is built.
type Thunk func() (string, error)

// Dict maps placeholder names to either a string or a Thunk.
type Dict map[string]any

var placeholderRe = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// BuiltinDict returns the standard dictionary described by the manifest
// loader: basedir/configdir/workdir as plain strings, hostname/
// hostaddress/user/pid as thunks so they reflect whichever rank resolves
// them, and every OS environment variable at call time.
func BuiltinDict(workdir string) Dict {
	basedir := BaseDir(workdir)
	d := Dict{
		"workdir":     workdir,
		"basedir":     basedir,
		"configdir":   filepath.Join(basedir, "conf"),
		"hostname":    Thunk(hostnameThunk),
		"hostaddress": Thunk(hostaddressThunk),
		"user":        Thunk(currentUserThunk),
		"pid":         Thunk(pidThunk),
	}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok {
			d[name] = value
		}
	}
	return d
}

// BaseDir computes <workdir>/hod/<user>.<fqdn>.<pid>, the per-job scratch
// root every rank derives its own basedir/configdir from.
func BaseDir(workdir string) string {
	user, err := currentUserThunk()
	if err != nil {
		user = "unknown"
	}
	host, err := hostnameThunk()
	if err != nil {
		host = "unknown"
	}
	dirName := fmt.Sprintf("%s.%s.%d", user, host, os.Getpid())
	return filepath.Join(workdir, "hod", dirName)
}

// hostnameThunk resolves $hostname to the local FQDN, not the bare
// hostname: spec.md §4.3 defines hostname as "local FQDN", the same
// value probe.Probe publishes as NodeDescriptor.FQDN, so the two must
// agree on hosts where the short name and FQDN differ.
func hostnameThunk() (string, error) {
	fqdn, err := probe.LocalFQDN()
	if err != nil {
		return "", fmt.Errorf("lookup local fqdn: %w", err)
	}
	return fqdn, nil
}

func hostaddressThunk() (string, error) {
	host, err := hostnameThunk()
	if err != nil {
		return "", err
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("lookup address for %s: %w", host, err)
	}
	return addrs[0], nil
}

func currentUserThunk() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("lookup current user: %w", err)
	}
	return u.Username, nil
}

func pidThunk() (string, error) {
	return strconv.Itoa(os.Getpid()), nil
}

// Resolve substitutes every $name/${name} placeholder in s. overrides are
// consulted before dict and always win over built-ins. Resolution is
// eager: Resolve always returns a fully-substituted string or the first
// error encountered, never a partially-resolved string.
func Resolve(s string, dict Dict, overrides map[string]string) (string, error) {
	var firstErr error
	result := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		groups := placeholderRe.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}

		if v, ok := overrides[name]; ok {
			return v
		}
		raw, ok := dict[name]
		if !ok {
			firstErr = fmt.Errorf("undefined template variable %q", name)
			return match
		}
		switch v := raw.(type) {
		case string:
			return v
		case Thunk:
			resolved, err := v()
			if err != nil {
				firstErr = fmt.Errorf("resolve template variable %q: %w", name, err)
				return match
			}
			return resolved
		default:
			firstErr = fmt.Errorf("template variable %q has unsupported type %T", name, raw)
			return match
		}
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
