package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcugent/hod/internal/cluster"
	"github.com/hpcugent/hod/internal/manifest"
	"github.com/hpcugent/hod/internal/work"
)

func TestGetenv(t *testing.T) {
	t.Setenv("HODRANK_TEST_KEY", "value")
	assert.Equal(t, "value", getenv("HODRANK_TEST_KEY", "default"))
	assert.Equal(t, "default", getenv("HODRANK_TEST_UNSET", "default"))
}

func TestGetenvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes"} {
		t.Setenv("HODRANK_TEST_BOOL", v)
		assert.True(t, getenvBool("HODRANK_TEST_BOOL"), "expected %q to be truthy", v)
	}
	t.Setenv("HODRANK_TEST_BOOL", "0")
	assert.False(t, getenvBool("HODRANK_TEST_BOOL"))
	os.Unsetenv("HODRANK_TEST_UNSET_BOOL")
	assert.False(t, getenvBool("HODRANK_TEST_UNSET_BOOL"))
}

func TestMustGetenvIntFatalsOnMissing(t *testing.T) {
	var fatalMsg string
	orig := logFatal
	logFatal = func(format string, args ...any) { fatalMsg = format }
	defer func() { logFatal = orig }()

	os.Unsetenv("HODRANK_TEST_MISSING_INT")
	mustGetenvInt("HODRANK_TEST_MISSING_INT")
	assert.Contains(t, fatalMsg, "missing env")
}

func TestMustGetenvIntFatalsOnNonInteger(t *testing.T) {
	var fatalMsg string
	orig := logFatal
	logFatal = func(format string, args ...any) { fatalMsg = format }
	defer func() { logFatal = orig }()

	t.Setenv("HODRANK_TEST_BAD_INT", "not-a-number")
	mustGetenvInt("HODRANK_TEST_BAD_INT")
	assert.Contains(t, fatalMsg, "must be an integer")
}

func TestPollIntervalDefaultsWhenUnsetOrInvalid(t *testing.T) {
	os.Unsetenv("HOD_POLL_INTERVAL")
	assert.Equal(t, work.DefaultPollInterval, pollInterval())

	t.Setenv("HOD_POLL_INTERVAL", "not-a-duration")
	assert.Equal(t, work.DefaultPollInterval, pollInterval())

	t.Setenv("HOD_POLL_INTERVAL", "5s")
	assert.Equal(t, 5*time.Second, pollInterval())
}

func TestBuildServiceClients(t *testing.T) {
	dist := cluster.Distribution{
		Kind: cluster.ServiceLocalClient,
		SharedParams: map[string]cluster.SharedValue{
			"work_script":       {Value: "run.sh"},
			"client_env_source": {Value: "env.sh"},
		},
	}
	svc, err := buildService(dist, nil)
	require.NoError(t, err)
	assert.Equal(t, cluster.ServiceLocalClient, svc.Kind())

	svc, err = buildService(cluster.Distribution{Kind: cluster.ServiceRemoteClient}, nil)
	require.NoError(t, err)
	assert.Equal(t, cluster.ServiceRemoteClient, svc.Kind())
}

func TestBuildServiceManifestBacked(t *testing.T) {
	unit := &manifest.UnitManifest{Name: "HDFS", StartCmd: "start.sh", StopCmd: "stop.sh"}
	units := map[string]*manifest.UnitManifest{"HDFS": unit}

	svc, err := buildService(cluster.Distribution{Kind: cluster.ServiceHDFS}, units)
	require.NoError(t, err)
	assert.Equal(t, cluster.ServiceHDFS, svc.Kind())
}

func TestBuildServiceMissingManifest(t *testing.T) {
	_, err := buildService(cluster.Distribution{Kind: cluster.ServiceMapReduce}, map[string]*manifest.UnitManifest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPRED")
}

func TestLoadUnitsIndexesByUppercasedName(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/hdfs.unit"
	content := "[Unit]\nName = hdfs\nRunsOn = all\n\n[Service]\nExecStart = start.sh\nExecStop = stop.sh\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	units, err := loadUnits([]string{path})
	require.NoError(t, err)
	require.Contains(t, units, "HDFS")
	assert.Equal(t, "start.sh", units["HDFS"].StartCmd)
}
