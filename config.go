package kernelsearch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//////
// Const, vars, types.
//////

// EnvPrefix prefixes every environment override, e.g. KSS_MAX_DEPTH.
const EnvPrefix = "KSS_"

// configValidate is the validator instance for SearchConfig. Initialized in
// init() with the kernelkind rule.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("kernelkind", func(fl validator.FieldLevel) bool {
		_, err := ParseKind(fl.Field().String())

		return err == nil
	})
}

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration.
func DefaultConfig() SearchConfig {
	return SearchConfig{
		MaxDepth:             10,
		K:                    1,
		RestartCount:         2,
		RestartSD:            4,
		MaxJobs:              500,
		NEval:                250,
		Iterations:           100,
		BaseKernels:          strings.Split(DefaultBaseKernels, ","),
		ZeroMean:             true,
		VerboseResults:       false,
		RandomSeed:           0,
		UseMinPeriod:         true,
		PeriodHeuristic:      10,
		UseConstraints:       false,
		AlphaHeuristic:       -2,
		LengthscaleHeuristic: -4.5,
		Criterion:            CriterionBIC,
		ProgressChan:         nil, // Default to no progress updates.
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Parameters:
// - path: YAML file to read; empty means defaults and environment only
//
// Returns:
// - SearchConfig: the merged, validated configuration
// - error: wraps ErrInvalidConfig for a missing or unreadable file, unknown
// keys, unparsable environment values and failed validation
//
// Usage example:
//
//	config, err := LoadConfig("experiment.yaml")
//	if err != nil {
//	    return err
//	}
//
//	result, err := Search(ctx, config, data, evaluator)
func LoadConfig(path string) (SearchConfig, error) {
	config := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return config, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		defer f.Close()

		if err := DecodeConfig(f, &config); err != nil {
			return config, err
		}
	}

	if err := applyEnvOverrides(&config, os.LookupEnv); err != nil {
		return config, err
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// DecodeConfig reads YAML from r over the values already in config. Keys
// that do not correspond to a field are an error.
func DecodeConfig(r io.Reader, config *SearchConfig) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Validate checks field ranges, the base-kernel whitelist and the rule that
// a fitted constant mean cannot be combined with the Const kernel.
func (c SearchConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !c.ZeroMean && slices.Contains(c.BaseKernels, KindConst.String()) {
		return fmt.Errorf("%w: zero_mean=false cannot be used with the Const kernel", ErrInvalidConfig)
	}

	return nil
}

// Kinds resolves BaseKernels into kinds in enumeration order.
func (c SearchConfig) Kinds() ([]Kind, error) {
	return KindsFromIDs(c.BaseKernels)
}

// YAML renders the configuration as it would be loaded.
func (c SearchConfig) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

//////
// Helper functions.
//////

func applyEnvOverrides(config *SearchConfig, lookup func(string) (string, bool)) error {
	var errs []error

	env := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}

		return strings.TrimSpace(v), true
	}

	setInt := func(name string, dst *int) {
		if v, ok := env(name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))

				return
			}

			*dst = i
		}
	}

	setFloat := func(name string, dst *float64) {
		if v, ok := env(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))

				return
			}

			*dst = f
		}
	}

	setBool := func(name string, dst *bool) {
		if v, ok := env(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))

				return
			}

			*dst = b
		}
	}

	setInt("MAX_DEPTH", &config.MaxDepth)
	setInt("K", &config.K)
	setInt("N_RAND", &config.RestartCount)
	setFloat("SD", &config.RestartSD)
	setInt("MAX_JOBS", &config.MaxJobs)
	setInt("N_EVAL", &config.NEval)
	setInt("ITERS", &config.Iterations)
	setBool("ZERO_MEAN", &config.ZeroMean)
	setBool("VERBOSE_RESULTS", &config.VerboseResults)
	setBool("USE_MIN_PERIOD", &config.UseMinPeriod)
	setFloat("PERIOD_HEURISTIC", &config.PeriodHeuristic)
	setBool("USE_CONSTRAINTS", &config.UseConstraints)
	setFloat("ALPHA_HEURISTIC", &config.AlphaHeuristic)
	setFloat("LENGTHSCALE_HEURISTIC", &config.LengthscaleHeuristic)
	setBool("VERBOSE", &config.Verbose)
	setBool("DEBUG", &config.Debug)

	if v, ok := env("RANDOM_SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRANDOM_SEED: %w", EnvPrefix, err))
		} else {
			config.RandomSeed = seed
		}
	}

	if v, ok := env("BASE_KERNELS"); ok {
		config.BaseKernels = strings.Split(v, ",")
		for i := range config.BaseKernels {
			config.BaseKernels[i] = strings.TrimSpace(config.BaseKernels[i])
		}
	}

	if v, ok := env("CRITERION"); ok {
		config.Criterion = Criterion(strings.ToLower(v))
	}

	if v, ok := env("DESCRIPTION"); ok {
		config.Description = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}
