package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qsdfplkj/azure-functions-host/internal/hostconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the worker-concurrency configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved ConcurrencyOptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := hostconfig.Setup(hostconfig.OSLookup, v)
		if err != nil {
			return err
		}
		fmt.Printf("enabled:           %t\n", opts.Enabled)
		fmt.Printf("checkInterval:     %s\n", opts.CheckInterval)
		fmt.Printf("adjustmentPeriod:  %s\n", opts.AdjustmentPeriod)
		fmt.Printf("historySize:       %d\n", opts.HistorySize)
		fmt.Printf("historyThreshold:  %v\n", opts.HistoryThreshold)
		fmt.Printf("latencyThreshold:  %s\n", opts.LatencyThreshold)
		fmt.Printf("maxWorkerCount:    %d\n", opts.MaxWorkerCount)
		return nil
	},
}

const defaultConfigTemplate = `workerConcurrencyOptions:
  checkInterval: 1s
  adjustmentPeriod: 10s
  historySize: 10
  historyThreshold: 1.0
  latencyThreshold: 1s
  maxWorkerCount: 0
`

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml to the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "config.yaml"
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; remove it first if you want to regenerate it", path)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
