package work

import (
	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/template"
)

// ManifestService adapts a loaded unit manifest into a Service. It
// covers every ordinary distribution kind (HDFS, MapReduce, HBase, YARN,
// and user-defined generic units; the two client kinds are built-in
// services, see clientservice.go); HDFS alone has a non-trivial
// PrepareConfig, mirroring the original's HBase-aware HDFS tuning.
type ManifestService struct {
	unit *manifest.UnitManifest
	kind cluster.ServiceKind
}

// NewManifestService builds a Service for kind backed by unit.
func NewManifestService(kind cluster.ServiceKind, unit *manifest.UnitManifest) *ManifestService {
	return &ManifestService{kind: kind, unit: unit}
}

func (s *ManifestService) Kind() cluster.ServiceKind { return s.kind }

// PrepareConfig raises dfs.datanode.max.xcievers when HBase shares this
// HDFS distribution's ranks, the one piece of cross-service tuning the
// original (hanythingondemand) carried.
func (s *ManifestService) PrepareConfig(dist cluster.Distribution) map[string]string {
	tuning := map[string]string{}
	if s.kind == cluster.ServiceHDFS && dist.OtherWork["Hbase"] {
		tuning["dfs.datanode.max.xcievers"] = "4096"
	}
	return tuning
}

func (s *ManifestService) PreStartCmd(dict template.Dict, overrides map[string]string) (string, error) {
	return s.unit.ResolvedPreStartCmd(dict, overrides)
}

func (s *ManifestService) StartCmd(dict template.Dict, overrides map[string]string) (string, error) {
	return s.unit.ResolvedStartCmd(dict, overrides)
}

func (s *ManifestService) StopCmd(dict template.Dict, overrides map[string]string) (string, error) {
	return s.unit.ResolvedStopCmd(dict, overrides)
}

func (s *ManifestService) Env(dict template.Dict, overrides map[string]string) ([]manifest.EnvVar, error) {
	return s.unit.ResolvedEnv(dict, overrides)
}
