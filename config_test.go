package kernelsearch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, config.Validate())

	assert.Equal(t, 10, config.MaxDepth)
	assert.Equal(t, 1, config.K)
	assert.Equal(t, 2, config.RestartCount)
	assert.Equal(t, 4.0, config.RestartSD)
	assert.Equal(t, 500, config.MaxJobs)
	assert.Equal(t, 250, config.NEval)
	assert.Equal(t, 100, config.Iterations)
	assert.Equal(t, []string{"SE", "RQ", "Per", "Lin", "Const"}, config.BaseKernels)
	assert.True(t, config.ZeroMean)
	assert.True(t, config.UseMinPeriod)
	assert.False(t, config.UseConstraints)
	assert.Equal(t, CriterionBIC, config.Criterion)

	kinds, err := config.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindSE, KindPer, KindRQ, KindConst, KindLin}, kinds)
}

func TestDecodeConfig(t *testing.T) {
	config := DefaultConfig()

	err := DecodeConfig(strings.NewReader(`
max_depth: 3
k: 2
base_kernels: [SE, Lin]
zero_mean: false
criterion: nll
`), &config)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 3, config.MaxDepth)
	assert.Equal(t, 2, config.K)
	assert.Equal(t, []string{"SE", "Lin"}, config.BaseKernels)
	assert.False(t, config.ZeroMean)
	assert.Equal(t, CriterionNLL, config.Criterion)

	// Untouched keys keep their defaults.
	assert.Equal(t, 250, config.NEval)
}

func TestDecodeConfigRejectsUnknownKeys(t *testing.T) {
	config := DefaultConfig()

	err := DecodeConfig(strings.NewReader("max_depht: 3\n"), &config)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDecodeConfigEmptyInput(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, DecodeConfig(strings.NewReader("  \n"), &config))
	assert.Equal(t, DefaultConfig().MaxDepth, config.MaxDepth)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SearchConfig)
	}{
		{"zero depth", func(c *SearchConfig) { c.MaxDepth = 0 }},
		{"zero k", func(c *SearchConfig) { c.K = 0 }},
		{"negative restarts", func(c *SearchConfig) { c.RestartCount = -1 }},
		{"zero sd", func(c *SearchConfig) { c.RestartSD = 0 }},
		{"zero jobs", func(c *SearchConfig) { c.MaxJobs = 0 }},
		{"no kernels", func(c *SearchConfig) { c.BaseKernels = nil }},
		{"unknown kernel", func(c *SearchConfig) { c.BaseKernels = []string{"SE", "Spline"} }},
		{"unknown criterion", func(c *SearchConfig) { c.Criterion = "aic" }},
		{"fitted mean with Const", func(c *SearchConfig) { c.ZeroMean = false }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(&config)

			require.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"KSS_MAX_DEPTH":    "4",
		"KSS_SD":           "1.5",
		"KSS_BASE_KERNELS": "SE, Per",
		"KSS_CRITERION":    "NLL",
		"KSS_DEBUG":        "true",
		"KSS_RANDOM_SEED":  "17",
		"KSS_K":            "  ",
	}

	lookup := func(key string) (string, bool) {
		v, ok := env[key]

		return v, ok
	}

	config := DefaultConfig()
	require.NoError(t, applyEnvOverrides(&config, lookup))

	assert.Equal(t, 4, config.MaxDepth)
	assert.Equal(t, 1.5, config.RestartSD)
	assert.Equal(t, []string{"SE", "Per"}, config.BaseKernels)
	assert.Equal(t, CriterionNLL, config.Criterion)
	assert.True(t, config.Debug)
	assert.Equal(t, int64(17), config.RandomSeed)
	assert.Equal(t, 1, config.K, "blank values are ignored")
}

func TestApplyEnvOverridesReportsEveryBadValue(t *testing.T) {
	env := map[string]string{
		"KSS_MAX_DEPTH": "deep",
		"KSS_ZERO_MEAN": "maybe",
	}

	config := DefaultConfig()
	err := applyEnvOverrides(&config, func(key string) (string, bool) {
		v, ok := env[key]

		return v, ok
	})

	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "KSS_MAX_DEPTH")
	assert.Contains(t, err.Error(), "KSS_ZERO_MEAN")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_depth: 2\nn_rand: 0\n"), 0o600))

	t.Setenv("KSS_MAX_DEPTH", "5")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, config.MaxDepth, "environment wins over the file")
	assert.Equal(t, 0, config.RestartCount)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.Description = "airline"
	config.MaxDepth = 7

	out, err := config.YAML()
	require.NoError(t, err)
	assert.NotContains(t, out, "progress")

	decoded := DefaultConfig()
	require.NoError(t, DecodeConfig(strings.NewReader(out), &decoded))
	assert.Equal(t, config, decoded)
}
