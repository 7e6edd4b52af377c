// Package hostconfig resolves internal/concurrency.Options from the
// environment and a Viper configuration tree, implementing SPEC_FULL.md
// §4.3's precedence rules: explicit per-runtime environment overrides win
// outright, and only in their absence is the configuration tree trusted.
package hostconfig

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

// Environment variable names recognized by Setup, per SPEC_FULL.md §6.
const (
	EnvDynamicConcurrencyEnabled = "FUNCTIONS_WORKER_DYNAMIC_CONCURRENCY_ENABLED"
	EnvWorkerProcessCount        = "FUNCTIONS_WORKER_PROCESS_COUNT"
	EnvWorkerRuntime             = "FUNCTIONS_WORKER_RUNTIME"
	EnvPythonThreadPoolCount     = "PYTHON_THREADPOOL_THREAD_COUNT"
	EnvPSWorkerConcurrencyBound  = "PSWorkerInProcConcurrencyUpperBound"

	RuntimePython     = "python"
	RuntimePowerShell = "powershell"
)

// configSectionKey is the Viper path under which the tunable fields of
// concurrency.Options are bound.
const configSectionKey = "workerConcurrencyOptions"

// EnvLookup abstracts os.LookupEnv so tests can supply a fixed map instead
// of mutating process environment (SPEC_FULL.md Scenario H).
type EnvLookup func(key string) (string, bool)

// boundOptions mirrors concurrency.Options field-for-field for Viper/mapstructure
// unmarshalling; durations are bound as strings first so ISO-8601 forms can
// be normalized before conversion (see parseDuration).
type boundOptions struct {
	CheckInterval    string  `mapstructure:"checkInterval"`
	AdjustmentPeriod string  `mapstructure:"adjustmentPeriod"`
	HistorySize      int     `mapstructure:"historySize"`
	HistoryThreshold float64 `mapstructure:"historyThreshold"`
	LatencyThreshold string  `mapstructure:"latencyThreshold"`
	MaxWorkerCount   int     `mapstructure:"maxWorkerCount"`
}

// NewViper constructs the *viper.Viper instance used by Setup, seeded with
// the SPEC_FULL.md §3 defaults and bound to FUNCTIONS_HOST-prefixed
// environment variables, grounded on pkg/config's EnhancedConfig/Viper
// wiring.
func NewViper(logger *zap.Logger) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FUNCTIONS_HOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(configSectionKey+".checkInterval", concurrency.DefaultCheckInterval.String())
	v.SetDefault(configSectionKey+".adjustmentPeriod", concurrency.DefaultAdjustmentPeriod.String())
	v.SetDefault(configSectionKey+".historySize", concurrency.DefaultHistorySize)
	v.SetDefault(configSectionKey+".historyThreshold", concurrency.DefaultHistoryThreshold)
	v.SetDefault(configSectionKey+".latencyThreshold", concurrency.DefaultLatencyThreshold.String())
	v.SetDefault(configSectionKey+".maxWorkerCount", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Debug("no config.yaml found, using defaults and environment")
		} else {
			logger.Warn("failed to read config file", zap.Error(err))
		}
	} else {
		logger.Info("loaded configuration file", zap.String("file", v.ConfigFileUsed()))
	}

	// Config is immutable once bound into a concurrency.Options (SPEC_FULL.md
	// §3); a live reload would require restarting the manager, which this
	// host does not attempt. WatchConfig only logs, it never re-applies.
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("configuration file changed; restart the host to apply worker concurrency changes",
			zap.String("file", e.Name))
	})

	return v
}

// Setup implements SPEC_FULL.md §4.3: it decides whether dynamic
// concurrency is enabled from env, and if so binds the remaining fields
// from v's "workerConcurrencyOptions" section.
func Setup(env EnvLookup, v *viper.Viper) (concurrency.Options, error) {
	opts := concurrency.DefaultOptions()

	enabledRaw, set := env(EnvDynamicConcurrencyEnabled)
	if !set || !isTruthy(enabledRaw) {
		opts.Enabled = false
		return opts, nil
	}

	for _, key := range []string{EnvWorkerProcessCount, EnvPythonThreadPoolCount, EnvPSWorkerConcurrencyBound} {
		if val, ok := env(key); ok && val != "" {
			opts.Enabled = false
			return opts, nil
		}
	}

	opts.Enabled = true

	var bound boundOptions
	if err := v.UnmarshalKey(configSectionKey, &bound); err != nil {
		return concurrency.Options{}, concurrency.NewConfigInvalidError("failed to bind workerConcurrencyOptions", err)
	}

	checkInterval, err := parseDuration(bound.CheckInterval, concurrency.DefaultCheckInterval)
	if err != nil {
		return concurrency.Options{}, concurrency.NewConfigInvalidError("invalid checkInterval", err)
	}
	adjustmentPeriod, err := parseDuration(bound.AdjustmentPeriod, concurrency.DefaultAdjustmentPeriod)
	if err != nil {
		return concurrency.Options{}, concurrency.NewConfigInvalidError("invalid adjustmentPeriod", err)
	}
	latencyThreshold, err := parseDuration(bound.LatencyThreshold, concurrency.DefaultLatencyThreshold)
	if err != nil {
		return concurrency.Options{}, concurrency.NewConfigInvalidError("invalid latencyThreshold", err)
	}

	historySize := bound.HistorySize
	if historySize <= 0 {
		historySize = concurrency.DefaultHistorySize
	}

	historyThreshold := bound.HistoryThreshold
	if historyThreshold == 0 {
		historyThreshold = concurrency.DefaultHistoryThreshold
	}
	if historyThreshold <= 0 || historyThreshold > 1 {
		return concurrency.Options{}, concurrency.NewConfigInvalidError(
			fmt.Sprintf("historyThreshold must be in (0, 1], got %v", historyThreshold), nil)
	}

	opts.CheckInterval = checkInterval
	opts.AdjustmentPeriod = adjustmentPeriod
	opts.HistorySize = historySize
	opts.HistoryThreshold = historyThreshold
	opts.LatencyThreshold = latencyThreshold
	opts.MaxWorkerCount = bound.MaxWorkerCount

	opts = opts.ResolveMaxWorkerCount()

	return opts, nil
}

// OSLookup is the EnvLookup backed by the real process environment.
func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// WorkerEnvOverrides returns the environment variables the worker launcher
// must set on a new worker's process, per SPEC_FULL.md §4.3's rationale
// ("the host provides horizontal scaling, not in-worker scaling"). Returns
// nil for runtimes with nothing to override.
func WorkerEnvOverrides(runtime string, enabled bool) map[string]string {
	if !enabled {
		return nil
	}
	switch strings.ToLower(runtime) {
	case RuntimePython:
		return map[string]string{EnvPythonThreadPoolCount: "1"}
	case RuntimePowerShell:
		return map[string]string{EnvPSWorkerConcurrencyBound: "1"}
	default:
		return nil
	}
}

var isoDurationPattern = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2}(?:\.\d+)?)$`)

// parseDuration accepts both Go duration strings ("3s") and the ISO-8601
// "hh:mm:ss[.fff]" form used by the source host's configuration binder
// (SPEC_FULL.md §4.3 "Binding mechanics"). An empty string yields def.
func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if m := isoDurationPattern.FindStringSubmatch(raw); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.ParseFloat(m[3], 64)
		total := time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute +
			time.Duration(seconds*float64(time.Second))
		return total, nil
	}
	return 0, fmt.Errorf("hostconfig: %q is neither a Go duration nor an ISO-8601 hh:mm:ss duration", raw)
}

func isTruthy(raw string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && b
}
