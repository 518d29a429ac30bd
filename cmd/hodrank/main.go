// Command hodrank is the per-rank process entrypoint for a hod job:
// the same binary plays coordinator when HOD_RANK=0 and worker
// otherwise, mirroring the original hanythingondemand's single
// hod_main.py entrypoint branching on is_master rather than torua's
// two-binary node/coordinator split.
//
// Configuration (environment variables):
//
//	HOD_RANK              This process's rank (required)
//	HOD_WORLD_SIZE         Total number of ranks in the job (required)
//	HOD_SELF_ADDR          This rank's own advertised base URL (required)
//	HOD_ROOT_ADDR          Rank 0's base URL (required on ranks != 0)
//	HOD_LISTEN             Local listen address (default ":8081")
//	HOD_WORKDIR            Coordinator-provided scratch root (required)
//	HOD_PRESERVICE_MANIFEST  Bundle manifest path (required on rank 0)
//	HOD_WORK_SCRIPT        Optional user work-script for the local client
//	HOD_CLIENT_ENV_SOURCE  Optional environment script to source first
//	HOD_DISABLE_HDFS, HOD_DISABLE_MAPRED, HOD_ENABLE_HBASE, HOD_ENABLE_YARN
//	                       Feature toggles (rank 0 only; "1"/"true" enables)
//	HOD_LOG_LEVEL          debug|info|warn|error (default info)
//	HOD_LOG_JSON           "1" for JSON log output instead of console
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/exp/slices"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/collective"
	"github.com/hpcugent/hod/internal/logging"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/metrics"
	"github.com/hpcugent/hod/internal/planner"
	"github.com/hpcugent/hod/internal/probe"
	"github.com/hpcugent/hod/internal/template"
	"github.com/hpcugent/hod/internal/work"
)

// logFatal is a variable, not a direct call to logging, so tests can
// intercept process termination the way torua's cmd/node does.
var logFatal = func(format string, args ...any) {
	logging.Logger.Fatal().Msgf(format, args...)
}

// jobPlan is the single value the coordinator broadcasts to every
// worker: the frozen Plan plus whatever every rank needs to resolve it
// locally. Unit manifests are not embedded here -- spec.md's §3 says
// the plan ships the unresolved manifest, and since every rank shares
// the same scratch filesystem, the simplest unresolved form is "here is
// where to read it from", not a serialized copy.
type jobPlan struct {
	Plan         cluster.Plan      `json:"plan"`
	ServiceFiles []string          `json:"service_files"`
	MasterEnv    map[string]string `json:"master_env"`
}

func main() {
	logging.Init(logging.Config{
		Level:      logging.Level(getenv("HOD_LOG_LEVEL", "info")),
		JSONOutput: getenv("HOD_LOG_JSON", "") != "",
	})

	rank := mustGetenvInt("HOD_RANK")
	worldSize := mustGetenvInt("HOD_WORLD_SIZE")
	selfAddr := mustGetenv("HOD_SELF_ADDR")
	rootAddr := getenv("HOD_ROOT_ADDR", selfAddr)
	if rank != 0 {
		rootAddr = mustGetenv("HOD_ROOT_ADDR")
	}
	listen := getenv("HOD_LISTEN", ":8081")
	workdir := mustGetenv("HOD_WORKDIR")

	log := logging.WithRank(rank)
	log.Info().Int("world_size", worldSize).Str("listen", listen).Msg("hodrank starting")

	transport := collective.NewHTTPTransport(rank, worldSize, selfAddr, rootAddr)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())
	transport.RegisterHandlers(mux)

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen on %s: %v", listen, err)
		}
	}()

	ctx, cancelBootstrap := context.WithCancel(context.Background())
	defer cancelBootstrap()

	descriptor, err := probe.Probe()
	if err != nil {
		logFatal("probe local node: %v", err)
	}

	nodeTable, err := transport.Bootstrap(ctx, descriptor)
	if err != nil {
		logFatal("discovery bootstrap: %v", err)
	}
	log.Info().Int("nodes", len(nodeTable)).Msg("discovery complete")

	var jp jobPlan
	if rank == 0 {
		jp, err = buildPlan(nodeTable, workdir)
		if err != nil {
			logFatal("build plan: %v", err)
		}
	}

	world := collective.WorldGroup(rank, worldSize)
	if err := transport.Broadcast(ctx, world, 0, "plan", jp, &jp); err != nil {
		logFatal("broadcast plan: %v", err)
	}
	log.Info().Int("distributions", len(jp.Plan)).Msg("plan received")

	unitsByKind, err := loadUnits(jp.ServiceFiles)
	if err != nil {
		logFatal("load unit manifests: %v", err)
	}

	dict := template.BuiltinDict(workdir)
	overrides := map[string]string{"masterhostname": nodeTable[0].FQDN}
	controlRoot := filepath.Join(template.BaseDir(workdir), "control")

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		active []*work.ActiveWork
	)
	// Registered before any distribution starts so a stop signal delivered
	// during startup is buffered and applied once startup completes.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	for _, dist := range jp.Plan {
		if !slices.Contains(dist.Ranks, rank) {
			continue
		}
		dist := dist
		svc, err := buildService(dist, unitsByKind)
		if err != nil {
			log.Error().Err(err).Str("distribution", string(dist.Kind)).Msg("cannot build service, skipping distribution")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			aw, err := work.NewActiveWork(ctx, transport, dist, svc, controlRoot, dict, overrides, jp.MasterEnv, 0)
			if err != nil {
				log.Error().Err(err).Str("distribution", string(dist.Kind)).Msg("failed to form subgroup")
				return
			}
			if aw == nil {
				return
			}
			if err := aw.Run(ctx); err != nil {
				// A barrier failure here is the spec's Collective error
				// class, fatal to this rank; a pre_start/start_cmd
				// failure is the Service class and is confined to this
				// distribution. Either way this rank cannot safely drive
				// the remaining barriers for a half-started distribution,
				// so per spec.md §5 it is left for an external kill
				// rather than force a stop barrier peers aren't expecting.
				log.Error().Err(err).Str("distribution", string(dist.Kind)).Msg("distribution failed to start")
				return
			}
			mu.Lock()
			active = append(active, aw)
			mu.Unlock()
		}()
	}
	wg.Wait()

	go func() {
		<-stop
		log.Info().Msg("external stop signal received")
		mu.Lock()
		for _, aw := range active {
			aw.RequestStop()
		}
		mu.Unlock()
	}()

	supervisor := work.NewSupervisor(pollInterval())
	if err := supervisor.Run(ctx, active); err != nil {
		log.Error().Err(err).Msg("supervisor loop exited with error")
		shutdown(server)
		os.Exit(1)
	}

	log.Info().Msg("all distributions retired")
	shutdown(server)
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

// buildPlan runs C3/C4/C5 on the coordinator: load the preservice bundle
// manifest, resolve feature-toggle options from the environment, and run
// the distribution planner against the discovered node table.
func buildPlan(nodes cluster.NodeTable, workdir string) (jobPlan, error) {
	preservicePath := mustGetenv("HOD_PRESERVICE_MANIFEST")

	psm, err := manifest.LoadPreServiceManifest(preservicePath, workdir)
	if err != nil {
		return jobPlan{}, err
	}

	opts := planner.Options{
		DisableHDFS:      getenvBool("HOD_DISABLE_HDFS"),
		DisableMapReduce: getenvBool("HOD_DISABLE_MAPRED"),
		EnableHBase:      getenvBool("HOD_ENABLE_HBASE"),
		EnableYARN:       getenvBool("HOD_ENABLE_YARN"),
		WorkScript:       getenv("HOD_WORK_SCRIPT", ""),
		ClientEnvSource:  getenv("HOD_CLIENT_ENV_SOURCE", ""),
	}

	plan, err := planner.Plan(nodes, opts)
	if err != nil {
		return jobPlan{}, err
	}

	masterEnv := map[string]string{}
	for _, name := range psm.MasterEnv {
		if v, ok := os.LookupEnv(name); ok {
			masterEnv[name] = v
		}
	}

	return jobPlan{Plan: plan, ServiceFiles: psm.ServiceFiles, MasterEnv: masterEnv}, nil
}

// loadUnits parses every unit manifest file and indexes it by its
// uppercased Name, which planner.Options-driven distributions are
// expected to match by ServiceKind (e.g. a manifest with Name=HDFS backs
// the cluster.ServiceHDFS distribution).
func loadUnits(paths []string) (map[string]*manifest.UnitManifest, error) {
	out := make(map[string]*manifest.UnitManifest, len(paths))
	for _, p := range paths {
		unit, err := manifest.LoadUnitManifest(p)
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(unit.Name)] = unit
	}
	return out, nil
}

// buildService maps one planned Distribution to the Service that drives
// it. Client distributions are built-in (they carry no unit manifest);
// everything else must have a matching unit manifest loaded by name.
func buildService(dist cluster.Distribution, units map[string]*manifest.UnitManifest) (work.Service, error) {
	switch dist.Kind {
	case cluster.ServiceLocalClient:
		return work.NewLocalClientService(dist.SharedParams["work_script"].Value, dist.SharedParams["client_env_source"].Value), nil
	case cluster.ServiceRemoteClient:
		return work.NewRemoteClientService("", 0), nil
	default:
		unit, ok := units[strings.ToUpper(string(dist.Kind))]
		if !ok {
			return nil, errNoUnitManifest(dist.Kind)
		}
		return work.NewManifestService(dist.Kind, unit), nil
	}
}

type errNoUnitManifest cluster.ServiceKind

func (e errNoUnitManifest) Error() string {
	return "no unit manifest loaded with Name matching service kind " + string(e)
}

func pollInterval() time.Duration {
	raw := getenv("HOD_POLL_INTERVAL", "")
	if raw == "" {
		return work.DefaultPollInterval
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return work.DefaultPollInterval
	}
	return d
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string) bool {
	v := strings.ToLower(os.Getenv(k))
	return v == "1" || v == "true" || v == "yes"
}

func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}

func mustGetenvInt(k string) int {
	v := mustGetenv(k)
	n, err := strconv.Atoi(v)
	if err != nil {
		logFatal("env %s must be an integer, got %q", k, v)
	}
	return n
}
