package template

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlainAndBracedPlaceholders(t *testing.T) {
	dict := Dict{"hostname": "node03.cluster.local", "pid": "4242"}
	got, err := Resolve("start --host=$hostname --pid=${pid}", dict, nil)
	require.NoError(t, err)
	assert.Equal(t, "start --host=node03.cluster.local --pid=4242", got)
}

func TestResolveThunkInvokedAtSubstitutionTime(t *testing.T) {
	calls := 0
	dict := Dict{"rank": Thunk(func() (string, error) {
		calls++
		return fmt.Sprintf("rank-%d", calls), nil
	})}

	first, err := Resolve("$rank", dict, nil)
	require.NoError(t, err)
	second, err := Resolve("$rank", dict, nil)
	require.NoError(t, err)

	assert.Equal(t, "rank-1", first)
	assert.Equal(t, "rank-2", second)
}

func TestResolveOverridesWinOverDict(t *testing.T) {
	dict := Dict{"masterhostname": "wrong"}
	got, err := Resolve("$masterhostname", dict, map[string]string{"masterhostname": "rank0.cluster.local"})
	require.NoError(t, err)
	assert.Equal(t, "rank0.cluster.local", got)
}

func TestResolveUndefinedVariableIsAnError(t *testing.T) {
	_, err := Resolve("$nosuchvar", Dict{}, nil)
	require.Error(t, err)
}

func TestResolveThunkErrorPropagates(t *testing.T) {
	dict := Dict{"broken": Thunk(func() (string, error) { return "", fmt.Errorf("boom") })}
	_, err := Resolve("$broken", dict, nil)
	require.Error(t, err)
}

func TestBuiltinDictIncludesEnvironmentVariables(t *testing.T) {
	t.Setenv("HOD_TEST_VAR", "present")
	dict := BuiltinDict(t.TempDir())
	got, err := Resolve("$HOD_TEST_VAR", dict, nil)
	require.NoError(t, err)
	assert.Equal(t, "present", got)
}

func TestBaseDirIncludesUserHostPID(t *testing.T) {
	workdir := "/scratch/job"
	base := BaseDir(workdir)
	assert.Contains(t, base, workdir)
	assert.Contains(t, base, "hod")

	user, err := currentUserThunk()
	if err != nil {
		user = "unknown"
	}
	host, err := hostnameThunk()
	if err != nil {
		host = "unknown"
	}
	assert.Equal(t, filepath.Join(workdir, "hod", fmt.Sprintf("%s.%s.%d", user, host, os.Getpid())), base)
}
