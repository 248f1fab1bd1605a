package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"autodeploy/internal/interact"
	"autodeploy/internal/logging"
	"autodeploy/internal/orchestrator"
	"autodeploy/internal/session"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan [target]",
	Short: "Generate a deployment plan without executing it",
	Long: `Probes the target host, asks the oracle for a deployment plan, and
prints it as JSON. The output can be reviewed, edited, and fed back to
"autodeploy run --plan".`,
	Args: cobra.ExactArgs(1),
	RunE: generatePlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "write the plan to a file instead of stdout")
	planCmd.Flags().StringVar(&instructions, "instructions", "", "extra operator instructions for planning")
}

func generatePlan(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Debug: cfg.Logging.Debug, File: cfg.Logging.File})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := buildSession(cfg)
	if err != nil {
		return fmt.Errorf("establishing command session: %w", err)
	}
	defer sess.Close()

	orc, err := buildOracle(ctx, cfg)
	if err != nil {
		return err
	}

	handler := buildHandler(cfg, logger)
	handler.Notify(interact.LevelInfo, "Probing target host...")
	hostInfo := session.Probe(ctx, sess)

	plan, err := orchestrator.GeneratePlan(ctx, orc, target, cfg.Target.DeployDir, hostInfo, instructions)
	if err != nil {
		return err
	}

	out := os.Stdout
	if planOutput != "" {
		f, err := os.Create(planOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writePlan(plan, out)
}
