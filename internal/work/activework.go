package work

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/collective"
	"github.com/hpcugent/hod/internal/logging"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/metrics"
	"github.com/hpcugent/hod/internal/template"
)

var log = logging.WithComponent("work")

// State is one node of the per-distribution state machine.
type State string

const (
	StateNew         State = "NEW"
	StateJoined      State = "JOINED"
	StatePreRunning  State = "PRE_RUNNING"
	StateRunning     State = "RUNNING"
	StateStopping    State = "STOPPING"
	StateRetired     State = "RETIRED"
)

// DefaultAgeLimit is the lifetime budget applied when a distribution
// carries no per-service override.
const DefaultAgeLimit = 71 * time.Hour

const (
	sentinelForceStop     = "force_stop"
	sentinelForceContinue = "force_continue"
)

// ActiveWork drives one Distribution's state machine on the local rank.
// Every state transition that involves peers is gated by a collective
// barrier scoped to the distribution's subgroup; ranks outside that
// subgroup never construct an ActiveWork for it.
type ActiveWork struct {
	distribution cluster.Distribution
	service      Service
	transport    collective.Transport
	group        collective.Group
	dict         template.Dict
	overrides    map[string]string
	masterEnv    map[string]string

	controlDir string
	ageLimit   time.Duration
	startGrace time.Duration

	mu           sync.Mutex
	state        State
	startTime    time.Time
	cmd          *execCmd
	fatalErr     error
	externalStop bool
}

// NewActiveWork forms the distribution's subgroup and allocates a unique
// control directory. It returns (nil, nil) when the local rank is not a
// member of dist.Ranks: the caller should simply skip that distribution.
func NewActiveWork(ctx context.Context, transport collective.Transport, dist cluster.Distribution, svc Service, controlRoot string, dict template.Dict, overrides, masterEnv map[string]string, ageLimit time.Duration) (*ActiveWork, error) {
	// dist.Kind scopes the subgroup's rendezvous key so that two
	// Distributions sharing an identical Ranks list (HDFS and MAPRED
	// both running on every rank, per spec.md's own Scenario B/C) never
	// fold their arrivals into the same barrier counter.
	group, err := transport.Subgroup(ctx, dist.Ranks, string(dist.Kind))
	if err != nil {
		return nil, fmt.Errorf("form subgroup for %s: %w", dist.Kind, err)
	}
	if !group.Member() {
		return nil, nil
	}

	controlDir, err := newControlDir(controlRoot, dist.Kind)
	if err != nil {
		return nil, err
	}

	if ageLimit <= 0 {
		ageLimit = DefaultAgeLimit
	}

	return &ActiveWork{
		distribution: dist,
		service:      svc,
		transport:    transport,
		group:        group,
		dict:         dict,
		overrides:    overrides,
		masterEnv:    masterEnv,
		controlDir:   controlDir,
		ageLimit:     ageLimit,
		startGrace:   2 * time.Second,
		state:        StateNew,
	}, nil
}

func newControlDir(root string, kind cluster.ServiceKind) (string, error) {
	dir := filepath.Join(root, string(kind), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create control directory for %s: %w", kind, err)
	}
	return dir, nil
}

func (w *ActiveWork) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	if prev != "" {
		metrics.ActiveWorkGauge.WithLabelValues(string(prev)).Dec()
	}
	metrics.ActiveWorkGauge.WithLabelValues(string(s)).Inc()
	log.Debug().Str("distribution", string(w.distribution.Kind)).Str("state", string(s)).Msg("state transition")
}

// State returns the current state.
func (w *ActiveWork) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ControlDir returns this distribution's rank-local scratch directory.
func (w *ActiveWork) ControlDir() string { return w.controlDir }

// Distribution returns the Distribution this ActiveWork drives.
func (w *ActiveWork) Distribution() cluster.Distribution { return w.distribution }

// RequestStop records delivery of an external termination signal
// (spec.md stop condition 3).
func (w *ActiveWork) RequestStop() {
	w.mu.Lock()
	w.externalStop = true
	w.mu.Unlock()
}

// Run drives the distribution from JOINED through RUNNING: subgroup
// formation has already happened in NewActiveWork, so this performs the
// pre-start barrier, runs pre_start_cmd (if any), performs the start
// barrier, and launches start_cmd.
func (w *ActiveWork) Run(ctx context.Context) error {
	w.setState(StateJoined)

	if err := w.transport.Barrier(ctx, w.group, "pre-start"); err != nil {
		return fmt.Errorf("barrier pre-start for %s: %w", w.distribution.Kind, err)
	}
	w.setState(StatePreRunning)

	tuning := w.service.PrepareConfig(w.distribution)
	resolvedEnv, err := w.service.Env(w.dict, w.overrides)
	if err != nil {
		return fmt.Errorf("resolve environment for %s: %w", w.distribution.Kind, err)
	}
	env := w.buildEnv(tuning, resolvedEnv)

	preCmd, err := w.service.PreStartCmd(w.dict, w.overrides)
	if err != nil {
		return fmt.Errorf("resolve pre_start_cmd for %s: %w", w.distribution.Kind, err)
	}
	if preCmd != "" {
		if err := w.runForeground(ctx, preCmd, env, "pre_start"); err != nil {
			return fmt.Errorf("pre_start_cmd for %s: %w", w.distribution.Kind, err)
		}
	}

	if err := w.transport.Barrier(ctx, w.group, "start"); err != nil {
		return fmt.Errorf("barrier start for %s: %w", w.distribution.Kind, err)
	}

	startCmd, err := w.service.StartCmd(w.dict, w.overrides)
	if err != nil {
		return fmt.Errorf("resolve start_cmd for %s: %w", w.distribution.Kind, err)
	}

	w.mu.Lock()
	w.startTime = time.Now()
	w.mu.Unlock()

	if err := w.launchStartCmd(startCmd, env); err != nil {
		return fmt.Errorf("start_cmd for %s: %w", w.distribution.Kind, err)
	}
	w.setState(StateRunning)
	return nil
}

// ShouldStop evaluates the stop conditions in priority order: a fatal
// error from start_cmd and the force_stop sentinel stop unconditionally;
// an external signal stops next; force_continue then overrides the age
// limit alone; otherwise the age limit is checked.
func (w *ActiveWork) ShouldStop(now time.Time) (bool, string) {
	w.mu.Lock()
	fatalErr := w.fatalErr
	externalStop := w.externalStop
	startTime := w.startTime
	w.mu.Unlock()

	if fatalErr != nil {
		return true, fmt.Sprintf("fatal error: %v", fatalErr)
	}
	if w.sentinelExists(sentinelForceStop) {
		return true, "force_stop sentinel present"
	}
	if externalStop {
		return true, "external signal received"
	}
	if w.sentinelExists(sentinelForceContinue) {
		return false, "force_continue sentinel present"
	}
	if !startTime.IsZero() && now.Sub(startTime) > w.ageLimit {
		return true, "age limit exceeded"
	}
	return false, ""
}

// Stop drives STOPPING->RETIRED. It is idempotent: calling Stop on an
// already-retired distribution is a no-op.
func (w *ActiveWork) Stop(ctx context.Context) error {
	if w.State() == StateRetired {
		return nil
	}

	if err := w.transport.Barrier(ctx, w.group, "stop"); err != nil {
		return fmt.Errorf("barrier stop for %s: %w", w.distribution.Kind, err)
	}
	w.setState(StateStopping)

	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd != nil {
		cmd.terminate()
	}

	stopCmd, err := w.service.StopCmd(w.dict, w.overrides)
	if err != nil {
		return fmt.Errorf("resolve stop_cmd for %s: %w", w.distribution.Kind, err)
	}
	if stopCmd != "" {
		tuning := w.service.PrepareConfig(w.distribution)
		resolvedEnv, envErr := w.service.Env(w.dict, w.overrides)
		if envErr != nil {
			return fmt.Errorf("resolve environment for %s stop: %w", w.distribution.Kind, envErr)
		}
		if runErr := w.runForeground(ctx, stopCmd, w.buildEnv(tuning, resolvedEnv), "stop"); runErr != nil {
			log.Error().Err(runErr).Str("distribution", string(w.distribution.Kind)).Msg("stop_cmd failed")
		}
	}

	if err := w.transport.Barrier(ctx, w.group, "retire"); err != nil {
		return fmt.Errorf("barrier retire for %s: %w", w.distribution.Kind, err)
	}
	w.setState(StateRetired)
	return nil
}

func (w *ActiveWork) sentinelExists(name string) bool {
	_, err := os.Stat(filepath.Join(w.controlDir, name))
	return err == nil
}

// buildEnv layers the local process environment, then PrepareConfig's
// tuning values, then the coordinator-captured master_env, then the
// manifest's own [Environment] entries last so manifest always wins a
// tie, per spec.md's child-process contract.
func (w *ActiveWork) buildEnv(tuning map[string]string, resolvedEnv []manifest.EnvVar) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok {
			merged[name] = value
		}
	}
	for k, v := range tuning {
		merged[k] = v
	}
	for k, v := range w.masterEnv {
		merged[k] = v
	}
	for _, kv := range resolvedEnv {
		merged[kv.Name] = kv.Value
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
