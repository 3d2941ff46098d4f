package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ks "github.com/thalesfsp/kernelsearch"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()

	return out.String(), err
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	out, err := run(t, args...)
	require.NoError(t, err)

	return out
}

func TestExpandCommand(t *testing.T) {
	seed, err := ks.NewMask(1, 0, ks.DefaultKernel(ks.KindSE, 1))
	require.NoError(t, err)

	out := execute(t, "expand", "--kernel", seed.String(), "--ndim", "1", "--kinds", "SE,Lin")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 6)

	for _, line := range lines {
		assert.Contains(t, line, "@0")
	}
}

func TestBestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")

	log, err := ks.NewResultsLog(path, "data", "run", ks.DefaultConfig())
	require.NoError(t, err)

	worse := ks.NewScoredKernel(ks.DefaultKernel(ks.KindLin, 1), 10, 0, -1, 20)
	better := ks.NewScoredKernel(ks.DefaultKernel(ks.KindSE, 1), 1, 0, -1, 20)
	require.NoError(t, log.AppendLevel(0, []ks.ScoredKernel{better, worse}))

	out := execute(t, "best", "--results", path, "--criterion", "nll", "--max-level", "-1")

	assert.True(t, strings.HasPrefix(out, "nll\t1\tSE("), out)
}

func TestBestCommandRejectsUnknownCriterion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")

	log, err := ks.NewResultsLog(path, "data", "run", ks.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, log.AppendLevel(0, []ks.ScoredKernel{ks.NewScoredKernel(ks.DefaultKernel(ks.KindSE, 1), 1, 0, -1, 20)}))

	_, err = run(t, "best", "--results", path, "--criterion", "aic")
	require.ErrorIs(t, err, ks.ErrInvalidConfig)
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("KSS_MAX_DEPTH", "3")

	out := execute(t, "config", "--config", "")

	assert.Contains(t, out, "max_depth: 3")
}
