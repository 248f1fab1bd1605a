package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"autodeploy/internal/config"
)

var version = "0.3.0"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "autodeploy",
	Short: "autodeploy - oracle-driven unattended deployment agent",
	Long: `autodeploy deploys software onto a local or remote host without a
human driving the shell. An LLM oracle decides each command, the agent
executes it under dual timeouts, compresses the output, and feeds the
result back until every plan step succeeds or a human is needed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the autodeploy version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autodeploy " + version)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, planCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
