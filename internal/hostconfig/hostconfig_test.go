package hostconfig

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

func fixedEnv(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func freshViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetDefault(configSectionKey+".checkInterval", concurrency.DefaultCheckInterval.String())
	v.SetDefault(configSectionKey+".adjustmentPeriod", concurrency.DefaultAdjustmentPeriod.String())
	v.SetDefault(configSectionKey+".historySize", concurrency.DefaultHistorySize)
	v.SetDefault(configSectionKey+".historyThreshold", concurrency.DefaultHistoryThreshold)
	v.SetDefault(configSectionKey+".latencyThreshold", concurrency.DefaultLatencyThreshold.String())
	v.SetDefault(configSectionKey+".maxWorkerCount", 0)
	return v
}

// Scenario H.
func TestSetup_EnabledDerivesMaxWorkerCount(t *testing.T) {
	env := fixedEnv(map[string]string{
		EnvDynamicConcurrencyEnabled: "true",
		EnvWorkerRuntime:             "node",
	})

	opts, err := Setup(env, freshViper(t))
	require.NoError(t, err)
	assert.True(t, opts.Enabled)
	assert.Greater(t, opts.MaxWorkerCount, 0)
}

func TestSetup_WorkerProcessCountDisables(t *testing.T) {
	env := fixedEnv(map[string]string{
		EnvDynamicConcurrencyEnabled: "true",
		EnvWorkerRuntime:             "node",
		EnvWorkerProcessCount:        "1",
	})

	opts, err := Setup(env, freshViper(t))
	require.NoError(t, err)
	assert.False(t, opts.Enabled)
	assert.Equal(t, 0, opts.MaxWorkerCount)
}

func TestSetup_MasterSwitchOff(t *testing.T) {
	opts, err := Setup(fixedEnv(nil), freshViper(t))
	require.NoError(t, err)
	assert.False(t, opts.Enabled)
}

func TestSetup_PythonThreadPoolCountDisables(t *testing.T) {
	env := fixedEnv(map[string]string{
		EnvDynamicConcurrencyEnabled: "1",
		EnvPythonThreadPoolCount:     "4",
	})
	opts, err := Setup(env, freshViper(t))
	require.NoError(t, err)
	assert.False(t, opts.Enabled)
}

func TestSetup_BindsConfiguredFields(t *testing.T) {
	v := freshViper(t)
	v.Set(configSectionKey+".historySize", 20)
	v.Set(configSectionKey+".historyThreshold", 0.5)
	v.Set(configSectionKey+".latencyThreshold", "250ms")
	v.Set(configSectionKey+".maxWorkerCount", 5)

	env := fixedEnv(map[string]string{EnvDynamicConcurrencyEnabled: "true"})
	opts, err := Setup(env, v)
	require.NoError(t, err)
	assert.Equal(t, 20, opts.HistorySize)
	assert.Equal(t, 0.5, opts.HistoryThreshold)
	assert.Equal(t, 5, opts.MaxWorkerCount)
}

func TestSetup_ISO8601Duration(t *testing.T) {
	v := freshViper(t)
	v.Set(configSectionKey+".adjustmentPeriod", "00:00:03")

	env := fixedEnv(map[string]string{EnvDynamicConcurrencyEnabled: "true"})
	opts, err := Setup(env, v)
	require.NoError(t, err)
	assert.Equal(t, 3_000_000_000, int(opts.AdjustmentPeriod))
}

func TestSetup_InvalidHistoryThresholdFailsLoudly(t *testing.T) {
	v := freshViper(t)
	v.Set(configSectionKey+".historyThreshold", 1.5)

	env := fixedEnv(map[string]string{EnvDynamicConcurrencyEnabled: "true"})
	_, err := Setup(env, v)
	require.Error(t, err)

	var cerr *concurrency.ConcurrencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, concurrency.ConfigInvalid, cerr.Kind)
}

func TestWorkerEnvOverrides(t *testing.T) {
	assert.Equal(t, map[string]string{EnvPythonThreadPoolCount: "1"}, WorkerEnvOverrides("python", true))
	assert.Equal(t, map[string]string{EnvPSWorkerConcurrencyBound: "1"}, WorkerEnvOverrides("powershell", true))
	assert.Nil(t, WorkerEnvOverrides("node", true))
	assert.Nil(t, WorkerEnvOverrides("python", false))
}

func TestNewViper_NoConfigFilePresent(t *testing.T) {
	v := NewViper(zap.NewNop())
	assert.Equal(t, concurrency.DefaultHistorySize, v.GetInt(configSectionKey+".historySize"))
}
