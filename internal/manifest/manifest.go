package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/template"
)

const (
	metaSection        = "Meta"
	configSection      = "Config"
	unitSection        = "Unit"
	serviceSection     = "Service"
	environmentSection = "Environment"
)

// PreServiceManifest is the bundle manifest: the set of unit manifests,
// config files, environment modules, and directories a job needs staged
// before any service starts.
type PreServiceManifest struct {
	Version      string
	BaseDir      string
	ConfigDir    string
	Modules      []string
	MasterEnv    []string
	ServiceFiles []string
	ConfigFiles  []string
	Directories  []string
}

// LoadPreServiceManifest parses path as a preservice bundle manifest.
// workdir is the coordinator-provided scratch root used to derive
// BaseDir/ConfigDir. Paths listed under services/configs are resolved
// relative to path's directory when not already absolute.
func LoadPreServiceManifest(path, workdir string) (*PreServiceManifest, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, parseErr(path, err)
	}

	meta := cfg.Section(metaSection)
	version, err := requiredKey(path, meta, metaSection, "version")
	if err != nil {
		return nil, err
	}

	config := cfg.Section(configSection)
	modules, err := requiredList(path, config, configSection, "modules")
	if err != nil {
		return nil, err
	}
	masterEnv, err := requiredList(path, config, configSection, "master_env")
	if err != nil {
		return nil, err
	}
	services, err := requiredList(path, config, configSection, "services")
	if err != nil {
		return nil, err
	}
	configs, err := requiredList(path, config, configSection, "configs")
	if err != nil {
		return nil, err
	}
	directories, err := requiredList(path, config, configSection, "directories")
	if err != nil {
		return nil, err
	}

	manifestDir := filepath.Dir(path)
	basedir := template.BaseDir(workdir)

	return &PreServiceManifest{
		Version:      version,
		BaseDir:      basedir,
		ConfigDir:    filepath.Join(basedir, "conf"),
		Modules:      modules,
		MasterEnv:    masterEnv,
		ServiceFiles: resolvePaths(services, manifestDir),
		ConfigFiles:  resolvePaths(configs, manifestDir),
		Directories:  directories,
	}, nil
}

// EnvVar is one KEY=VALUE entry from a unit manifest's [Environment]
// section. Order is preserved because the underlying service expects its
// environment in manifest order.
type EnvVar struct {
	Name  string
	Value string
}

// UnitManifest is one per-service unit manifest. PreStartCmd/StartCmd/
// StopCmd and Env values are unresolved template strings: the plan ships
// them as-is and each rank resolves them against its own dictionary (see
// internal/template), since fields like $hostname and $pid must reflect
// the resolving rank, not the coordinator.
type UnitManifest struct {
	Name        string
	RunsOn      cluster.RunsOn
	PreStartCmd string
	StartCmd    string
	StopCmd     string
	Env         []EnvVar
}

// LoadUnitManifest parses path as a per-service unit manifest.
func LoadUnitManifest(path string) (*UnitManifest, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, parseErr(path, err)
	}

	unit := cfg.Section(unitSection)
	name, err := requiredKey(path, unit, unitSection, "Name")
	if err != nil {
		return nil, err
	}
	runsOnRaw, err := requiredKey(path, unit, unitSection, "RunsOn")
	if err != nil {
		return nil, err
	}
	runsOn, err := parseRunsOn(runsOnRaw)
	if err != nil {
		return nil, invalidValueErr(path, unitSection, "RunsOn", err)
	}

	service := cfg.Section(serviceSection)
	startCmd, err := requiredKey(path, service, serviceSection, "ExecStart")
	if err != nil {
		return nil, err
	}
	stopCmd, err := requiredKey(path, service, serviceSection, "ExecStop")
	if err != nil {
		return nil, err
	}
	preStartCmd := ""
	if service.HasKey("ExecStartPre") {
		preStartCmd = service.Key("ExecStartPre").String()
	}

	var env []EnvVar
	if cfg.HasSection(environmentSection) {
		for _, key := range cfg.Section(environmentSection).Keys() {
			env = append(env, EnvVar{Name: key.Name(), Value: key.Value()})
		}
	}

	return &UnitManifest{
		Name:        name,
		RunsOn:      runsOn,
		PreStartCmd: preStartCmd,
		StartCmd:    startCmd,
		StopCmd:     stopCmd,
		Env:         env,
	}, nil
}

// ResolvedPreStartCmd resolves PreStartCmd against dict/overrides. An
// empty PreStartCmd resolves to "" without invoking the resolver.
func (u *UnitManifest) ResolvedPreStartCmd(dict template.Dict, overrides map[string]string) (string, error) {
	if u.PreStartCmd == "" {
		return "", nil
	}
	return template.Resolve(u.PreStartCmd, dict, overrides)
}

// ResolvedStartCmd resolves StartCmd against dict/overrides.
func (u *UnitManifest) ResolvedStartCmd(dict template.Dict, overrides map[string]string) (string, error) {
	return template.Resolve(u.StartCmd, dict, overrides)
}

// ResolvedStopCmd resolves StopCmd against dict/overrides.
func (u *UnitManifest) ResolvedStopCmd(dict template.Dict, overrides map[string]string) (string, error) {
	return template.Resolve(u.StopCmd, dict, overrides)
}

// ResolvedEnv resolves every Env value against dict/overrides, preserving
// manifest order.
func (u *UnitManifest) ResolvedEnv(dict template.Dict, overrides map[string]string) ([]EnvVar, error) {
	out := make([]EnvVar, 0, len(u.Env))
	for _, kv := range u.Env {
		resolved, err := template.Resolve(kv.Value, dict, overrides)
		if err != nil {
			return nil, fmt.Errorf("resolve environment variable %s: %w", kv.Name, err)
		}
		out = append(out, EnvVar{Name: kv.Name, Value: resolved})
	}
	return out, nil
}

func parseRunsOn(s string) (cluster.RunsOn, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master":
		return cluster.RunsOnCoordinator, nil
	case "slave":
		return cluster.RunsOnWorkers, nil
	case "all":
		return cluster.RunsOnAll, nil
	default:
		return "", fmt.Errorf("runs-on field must be one of master, slave, all, got %q", s)
	}
}

func requiredKey(file string, section *ini.Section, sectionName, key string) (string, error) {
	if !section.HasKey(key) {
		return "", missingKeyErr(file, sectionName, key)
	}
	return section.Key(key).String(), nil
}

func requiredList(file string, section *ini.Section, sectionName, key string) ([]string, error) {
	raw, err := requiredKey(file, section, sectionName, key)
	if err != nil {
		return nil, err
	}
	return splitCommaList(raw), nil
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func resolvePaths(paths []string, relativeTo string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
			continue
		}
		out[i] = filepath.Join(relativeTo, p)
	}
	return out
}
