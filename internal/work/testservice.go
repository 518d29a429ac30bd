package work

import (
	"fmt"
	"time"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/template"
)

// SleepService is a Service test double that runs `sleep` for a fixed
// duration, grounded directly in the original's SleepWork/TestWorkA/
// TestWorkB test doubles. It has no manifest and no environment.
type SleepService struct {
	kind     cluster.ServiceKind
	duration time.Duration
}

// NewSleepService builds a SleepService for kind that sleeps for d.
func NewSleepService(kind cluster.ServiceKind, d time.Duration) *SleepService {
	return &SleepService{kind: kind, duration: d}
}

func (s *SleepService) Kind() cluster.ServiceKind { return s.kind }

func (s *SleepService) PrepareConfig(cluster.Distribution) map[string]string { return nil }

func (s *SleepService) PreStartCmd(template.Dict, map[string]string) (string, error) {
	return "", nil
}

func (s *SleepService) StartCmd(template.Dict, map[string]string) (string, error) {
	seconds := int(s.duration.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("sleep %d", seconds), nil
}

func (s *SleepService) StopCmd(template.Dict, map[string]string) (string, error) {
	return "true", nil
}

func (s *SleepService) Env(template.Dict, map[string]string) ([]manifest.EnvVar, error) {
	return nil, nil
}
