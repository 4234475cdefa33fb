package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("WORKER_IMAGE", "registry.local/worker:1.2.3")

	path := writeCatalog(t, `{
		"jobs": {
			"spend-analysis": {"queue": "spend_queue", "image": "${WORKER_IMAGE}", "threshold": 10}
		}
	}`)

	cat, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, cat.Len())

	spec, ok := cat.Get("spend-analysis")
	require.True(t, ok)
	require.Equal(t, "registry.local/worker:1.2.3", spec.Image)
	require.Equal(t, 10, spec.Threshold)
}

func TestLoad_UnresolvedVarBecomesEmpty(t *testing.T) {
	path := writeCatalog(t, `{
		"jobs": {
			"t": {"queue": "q", "image": "${DOES_NOT_EXIST}", "threshold": 5}
		}
	}`)

	cat, err := Load(path)
	require.NoError(t, err)

	spec, _ := cat.Get("t")
	require.Equal(t, "", spec.Image)
}

func TestLoad_MissingFileYieldsEmptyCatalog(t *testing.T) {
	cat, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, 0, cat.Len())
}

func TestLoad_RejectsNonPositiveThreshold(t *testing.T) {
	path := writeCatalog(t, `{"jobs": {"t": {"queue": "q", "image": "w", "threshold": 0}}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_StableIterationOrder(t *testing.T) {
	path := writeCatalog(t, `{
		"jobs": {
			"zeta": {"queue": "q1", "image": "w", "threshold": 1},
			"alpha": {"queue": "q2", "image": "w", "threshold": 1},
			"mid": {"queue": "q3", "image": "w", "threshold": 1}
		}
	}`)

	cat, err := Load(path)
	require.NoError(t, err)

	var ids []string
	for _, t := range cat.Types() {
		ids = append(ids, t.TypeID)
	}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}
