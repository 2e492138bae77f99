package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nkefor/cutover/pkg/config"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cutover",
	Short: "Cutover - zero-downtime blue/green deployments",
	Long: `Cutover orchestrates blue/green deployments behind a load balancer:
deploy the new image to the standby environment, gate it on health,
switch traffic atomically, and roll back automatically if the new
environment misbehaves.

The load balancer's default rule is the single source of truth for
which environment is live.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      log.Level(logLevel),
			JSONOutput: jsonOutput,
		})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cutover version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cutover.yaml", "Path to pipeline configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit logs as JSON (for CI pipelines)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
}

func loadConfig() (*config.PipelineConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.PipelineConfig) (store.Store, error) {
	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return st, nil
}
