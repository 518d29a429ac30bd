package work

import (
	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/template"
)

// Service is the flat operation set every distribution's concrete
// behavior is built from: pre_start, start, stop, prepare_config. There
// is no class hierarchy; HDFS/MapReduce/HBase/YARN/clients are values of
// this interface, not subtypes of one another.
type Service interface {
	Kind() cluster.ServiceKind

	// PrepareConfig inspects the distribution this service belongs to
	// (in particular OtherWork annotations set by later-planned services)
	// and returns extra configuration tuning to merge into the service's
	// environment before start_cmd runs.
	PrepareConfig(dist cluster.Distribution) map[string]string

	PreStartCmd(dict template.Dict, overrides map[string]string) (string, error)
	StartCmd(dict template.Dict, overrides map[string]string) (string, error)
	StopCmd(dict template.Dict, overrides map[string]string) (string, error)
	Env(dict template.Dict, overrides map[string]string) ([]manifest.EnvVar, error)
}
