package work

import (
	"fmt"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/template"
)

// LocalClientService runs the user's optional work-script inside a
// detached screen session, sourcing the job's environment script first.
// Grounded directly in the original's LocalClient.start_work_service_master,
// which drove a GNU screen daemon through the same three steps.
type LocalClientService struct {
	workScript string
	envSource  string
}

// NewLocalClientService builds the LOCAL_CLIENT service. Either argument
// may be empty: an empty workScript only sources the environment (when
// given) and echoes status lines. The screen session ends as soon as its
// bash command finishes; it is not kept open for interactive attach.
func NewLocalClientService(workScript, envSource string) *LocalClientService {
	return &LocalClientService{workScript: workScript, envSource: envSource}
}

func (s *LocalClientService) Kind() cluster.ServiceKind { return cluster.ServiceLocalClient }

func (s *LocalClientService) PrepareConfig(cluster.Distribution) map[string]string { return nil }

func (s *LocalClientService) PreStartCmd(template.Dict, map[string]string) (string, error) {
	return "", nil
}

func (s *LocalClientService) StartCmd(template.Dict, map[string]string) (string, error) {
	inner := "echo OK No script run."
	if s.workScript != "" {
		inner = fmt.Sprintf("%s; echo OK Finished script %s", s.workScript, s.workScript)
	}
	if s.envSource != "" {
		inner = fmt.Sprintf(". %s; %s", s.envSource, inner)
	}
	return fmt.Sprintf("screen -dmS HODclient bash -c %q", inner+"; echo OK Start client."), nil
}

func (s *LocalClientService) StopCmd(template.Dict, map[string]string) (string, error) {
	return "screen -S HODclient -X quit", nil
}

func (s *LocalClientService) Env(template.Dict, map[string]string) ([]manifest.EnvVar, error) {
	return nil, nil
}

// RemoteClientService runs an embedded sshd so external tools can attach
// to the job, mirroring the original's RemoteClient sshdstart/sshdstop
// commands.
type RemoteClientService struct {
	sshdPath string
	port     int
}

// NewRemoteClientService builds the REMOTE_CLIENT service. sshdPath
// defaults to "/usr/sbin/sshd" and port to 2222 when zero-valued.
func NewRemoteClientService(sshdPath string, port int) *RemoteClientService {
	if sshdPath == "" {
		sshdPath = "/usr/sbin/sshd"
	}
	if port == 0 {
		port = 2222
	}
	return &RemoteClientService{sshdPath: sshdPath, port: port}
}

func (s *RemoteClientService) Kind() cluster.ServiceKind { return cluster.ServiceRemoteClient }

func (s *RemoteClientService) PrepareConfig(cluster.Distribution) map[string]string { return nil }

func (s *RemoteClientService) PreStartCmd(template.Dict, map[string]string) (string, error) {
	return "", nil
}

func (s *RemoteClientService) StartCmd(template.Dict, map[string]string) (string, error) {
	return fmt.Sprintf("%s -D -p %d", s.sshdPath, s.port), nil
}

func (s *RemoteClientService) StopCmd(template.Dict, map[string]string) (string, error) {
	return fmt.Sprintf("pkill -f %q", fmt.Sprintf("%s -D -p %d", s.sshdPath, s.port)), nil
}

func (s *RemoteClientService) Env(template.Dict, map[string]string) ([]manifest.EnvVar, error) {
	return nil, nil
}
