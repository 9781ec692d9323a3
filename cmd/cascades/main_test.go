package main

import (
	"bytes"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--engine", "memory"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestQueries(t *testing.T) {
	out, err := execute(t, "queries")
	require.NoError(t, err)
	assert.Contains(t, out, "symbol-history")
	assert.Contains(t, out, "volume-by-symbol")
}

func TestExplain(t *testing.T) {
	out, err := execute(t, "explain", "volume-by-symbol", "--memo", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "AggregateIndexPlan")
	assert.Contains(t, out, "groups")
	assert.Contains(t, out, "G1 (")
	assert.Contains(t, out, "cascades_rules_fired_total")

	_, err = execute(t, "explain", "no-such-query")
	assert.Error(t, err)
}

func TestRunWithResume(t *testing.T) {
	out, err := execute(t, "run", "sector-symbols")
	require.NoError(t, err)
	assert.Contains(t, out, "TICK0003")
	assert.Contains(t, out, "TICK0007")
	assert.Contains(t, out, "_2 rows_")

	out, err = execute(t, "run", "symbol-names", "--limit", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "_4 rows_")
	m := regexp.MustCompile(`--resume '([^']+)'`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	out, err = execute(t, "run", "symbol-names", "--resume", m[1])
	require.NoError(t, err)
	assert.Contains(t, out, "_6 rows_")
	assert.NotContains(t, out, "--resume")
}

func TestBench(t *testing.T) {
	out, err := execute(t, "bench", "--rounds", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "planned 18 queries")

	_, err = execute(t, "bench", "--rounds", "0")
	assert.Error(t, err)
}

func TestLoadAndRunOnBadger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--db", path, "load"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "10 symbols, 1200 bars")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--db", path, "run", "bars-per-symbol"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "120")
	assert.Contains(t, out.String(), "_10 rows_")
}
