package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autodeploy/internal/config"
	"autodeploy/internal/interact"
	"autodeploy/internal/knowledge"
	"autodeploy/internal/logging"
	"autodeploy/internal/loopdetect"
	"autodeploy/internal/oracle"
	"autodeploy/internal/orchestrator"
	"autodeploy/internal/runlog"
	"autodeploy/internal/session"
	"autodeploy/internal/types"
)

var (
	planFile     string
	instructions string
)

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Deploy a target end to end",
	Long: `Runs a full deployment of the target (a git URL or a short
description of what to deploy). A plan is generated by the oracle
unless --plan provides one, then each step is executed until the run
succeeds, fails, or a human aborts it.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	runCmd.Flags().StringVar(&planFile, "plan", "", "use a pre-generated plan (JSON) instead of asking the oracle")
	runCmd.Flags().StringVar(&instructions, "instructions", "", "extra operator instructions for planning")
}

func runDeploy(cmd *cobra.Command, args []string) error {
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

	var lessons *knowledge.Store
	if cfg.Knowledge.Enabled {
		lessons, err = knowledge.NewStore(cfg.Knowledge.Path)
		if err != nil {
			return fmt.Errorf("opening knowledge store: %w", err)
		}
		defer lessons.Close()
	}

	log, err := runlog.New(cfg.Execution.LogDir, target, cfg.Target.DeployDir)
	if err != nil {
		return fmt.Errorf("creating run log: %w", err)
	}
	handler.Notify(interact.LevelInfo, "Run log: "+log.Path())

	handler.Notify(interact.LevelInfo, "Probing target host...")
	hostInfo := session.Probe(ctx, sess)
	logger.Info("host probed", zap.Any("host_info", map[string]string(hostInfo)))

	plan, err := resolvePlan(ctx, orc, target, cfg, hostInfo)
	if err != nil {
		return err
	}
	handler.Notify(interact.LevelInfo,
		fmt.Sprintf("Plan ready: %d steps, strategy %s", len(plan.Steps), plan.Strategy))

	totalTimeout, _ := cfg.TotalTimeout()
	idleTimeout, _ := cfg.IdleTimeout()
	var mirror io.Writer
	if cfg.Execution.MirrorOutput {
		mirror = os.Stdout
	}
	executor := orchestrator.NewStepExecutor(orchestrator.ExecutorConfig{
		Mirror:        mirror,
		MaxIterations: cfg.Execution.MaxIterationsPerStep,
		TotalTimeout:  totalTimeout,
		IdleTimeout:   idleTimeout,
		LoopDetection: cfg.LoopDetectEnabled(),
		LoopConfig: loopdetect.Config{
			DirectRepeatWindow: cfg.LoopDetect.DirectRepeatThreshold,
			ErrorLoopWindow:    cfg.LoopDetect.ErrorLoopThreshold,
			CommandSimilarity:  cfg.LoopDetect.CommandSimilarityThreshold,
			OutputSimilarity:   cfg.LoopDetect.OutputSimilarityThreshold,
			ErrorSimilarity:    cfg.LoopDetect.ErrorSimilarityThreshold,
		},
	}, orc, sess, handler, lessons, logger)

	summary := orchestrator.NewSummaryManager(projectName(target), cfg.Target.DeployDir, plan.Strategy)
	o := orchestrator.New(executor, handler, summary, log, lessons, logger)

	result := o.Run(ctx, plan)

	switch result.Status {
	case string(runlog.StatusSuccess):
		handler.Notify(interact.LevelInfo, "Deployment completed successfully.")
		return nil
	default:
		return fmt.Errorf("run ended with status %s: %s", result.Status, result.Error)
	}
}

func buildSession(cfg *config.Config) (session.Session, error) {
	switch cfg.Target.Mode {
	case "ssh":
		timeout, err := cfg.SSHConnectTimeout()
		if err != nil {
			return nil, err
		}
		return session.NewSSHSession(session.Credentials{
			Host:       cfg.Target.SSH.Host,
			Port:       cfg.Target.SSH.Port,
			User:       cfg.Target.SSH.User,
			AuthMethod: cfg.Target.SSH.AuthMethod,
			Password:   cfg.Target.SSH.Password,
			KeyPath:    cfg.Target.SSH.KeyPath,
			Passphrase: cfg.Target.SSH.Passphrase,
			Timeout:    timeout,
		})
	default:
		var opts []session.LocalOption
		if cfg.Target.WorkDir != "" {
			opts = append(opts, session.WithWorkDir(cfg.Target.WorkDir))
		}
		return session.NewLocalSession(opts...), nil
	}
}

func buildOracle(ctx context.Context, cfg *config.Config) (oracle.Oracle, error) {
	timeout, err := cfg.OracleTimeout()
	if err != nil {
		return nil, err
	}

	switch cfg.Oracle.Provider {
	case "gemini":
		return oracle.NewGeminiClient(ctx, oracle.GeminiConfig{
			APIKey:      cfg.Oracle.APIKey,
			Model:       cfg.Oracle.Model,
			Temperature: cfg.Oracle.Temperature,
		})
	default:
		baseURL := cfg.Oracle.BaseURL
		if baseURL == "" {
			switch cfg.Oracle.Provider {
			case "deepseek":
				baseURL = "https://api.deepseek.com/v1"
			case "openrouter":
				baseURL = "https://openrouter.ai/api/v1"
			}
		}
		return oracle.NewOpenAIClient(oracle.OpenAIConfig{
			APIKey:      cfg.Oracle.APIKey,
			BaseURL:     baseURL,
			Model:       cfg.Oracle.Model,
			Temperature: cfg.Oracle.Temperature,
			Timeout:     timeout,
			MaxRetries:  cfg.Oracle.MaxRetries,
		}), nil
	}
}

func buildHandler(cfg *config.Config, logger *zap.Logger) interact.Handler {
	if cfg.Interaction.Mode == "auto" {
		return interact.NewAutoHandler(logger)
	}
	return interact.NewConsoleHandler(os.Stdin, os.Stdout)
}

// resolvePlan loads the plan from --plan or generates one.
func resolvePlan(ctx context.Context, orc oracle.Oracle, target string, cfg *config.Config, hostInfo session.HostInfo) (types.DeploymentPlan, error) {
	if planFile != "" {
		data, err := os.ReadFile(planFile)
		if err != nil {
			return types.DeploymentPlan{}, fmt.Errorf("reading plan file: %w", err)
		}
		return oracle.ParsePlan(string(data))
	}
	return orchestrator.GeneratePlan(ctx, orc, target, cfg.Target.DeployDir, hostInfo, instructions)
}

// projectName derives a short name from a git URL or free-form target.
func projectName(target string) string {
	name := strings.TrimSuffix(filepath.Base(strings.TrimSuffix(target, "/")), ".git")
	if name == "" || name == "." {
		return target
	}
	return name
}

// writePlan renders a plan as indented JSON.
func writePlan(plan types.DeploymentPlan, out *os.File) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
