// Package commands implements the functions-host Cobra command tree,
// grounded on the reference corpus's cmd/task-cli/commands/root.go:
// PersistentPreRunE builds the logger and loads the Viper configuration
// tree; persistent flags are plain package variables, not bound to Viper.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/hostconfig"
	"github.com/qsdfplkj/azure-functions-host/internal/platform/logging"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool

	logger *zap.Logger
	v      *viper.Viper

	version   = "0.0.0-dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "functions-host",
	Short: "Dynamic worker-pool autoscaler host for out-of-process language workers",
	Long: `functions-host runs the concurrency control loop that probes each
language worker's RPC round-trip latency and grows the worker pool when
the aggregate signal indicates overload.

Examples:
  functions-host run
  functions-host config show
  functions-host config init`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Config{Level: logLevel, JSON: logJSON, Service: "functions-host"})
		if err != nil {
			return fmt.Errorf("failed to construct logger: %w", err)
		}
		v = hostconfig.NewViper(logger)
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the command tree, exiting the process with status 1 on
// error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersionInfo lets main (via build-time ldflags) populate version
// metadata shown by the version command.
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of console output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
