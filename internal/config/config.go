// Package config loads and validates autodeploy configuration from a
// YAML file, with environment variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all autodeploy configuration.
type Config struct {
	// Target describes where commands run.
	Target TargetConfig `yaml:"target"`

	// Oracle configures the reasoning service.
	Oracle OracleConfig `yaml:"oracle"`

	// Execution bounds the per-step decision loop and command timeouts.
	Execution ExecutionConfig `yaml:"execution"`

	// LoopDetect tunes loop detection thresholds.
	LoopDetect LoopDetectConfig `yaml:"loop_detect"`

	// Interaction selects the human-interaction front-end.
	Interaction InteractionConfig `yaml:"interaction"`

	// Knowledge configures the experience store.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Logging controls verbosity and log destinations.
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig describes the host commands execute against.
type TargetConfig struct {
	Mode      string `yaml:"mode"` // local, ssh
	WorkDir   string `yaml:"work_dir"`
	DeployDir string `yaml:"deploy_dir"`

	SSH SSHConfig `yaml:"ssh"`
}

// SSHConfig holds credentials for the remote session variant.
type SSHConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	AuthMethod     string `yaml:"auth_method"` // password, key
	Password       string `yaml:"password"`
	KeyPath        string `yaml:"key_path"`
	Passphrase     string `yaml:"passphrase"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// OracleConfig configures the reasoning oracle provider.
type OracleConfig struct {
	Provider    string  `yaml:"provider"` // openai, deepseek, openrouter, gemini
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`
}

// ExecutionConfig bounds step execution.
type ExecutionConfig struct {
	MaxIterationsPerStep int    `yaml:"max_iterations_per_step"`
	DefaultTotalTimeout  string `yaml:"default_total_timeout"`
	DefaultIdleTimeout   string `yaml:"default_idle_timeout"`
	MirrorOutput         bool   `yaml:"mirror_output"`
	LogDir               string `yaml:"log_dir"`
}

// LoopDetectConfig tunes loop detection. The similarity thresholds were
// tuned empirically and may need adjustment for unusual shells.
type LoopDetectConfig struct {
	Enabled                    *bool   `yaml:"enabled"`
	DirectRepeatThreshold      int     `yaml:"direct_repeat_threshold"`
	ErrorLoopThreshold         int     `yaml:"error_loop_threshold"`
	CommandSimilarityThreshold float64 `yaml:"command_similarity_threshold"`
	OutputSimilarityThreshold  float64 `yaml:"output_similarity_threshold"`
	ErrorSimilarityThreshold   float64 `yaml:"error_similarity_threshold"`
}

// InteractionConfig selects how questions reach a human (or don't).
type InteractionConfig struct {
	Mode    string `yaml:"mode"` // console, auto
	Default string `yaml:"default"`
}

// KnowledgeConfig configures the sqlite experience store.
type KnowledgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the built-in defaults. Loop thresholds follow the
// empirically tuned values and stay configurable rather than hard-coded.
func DefaultConfig() *Config {
	enabled := true
	return &Config{
		Target: TargetConfig{
			Mode:      "local",
			DeployDir: "~/deploy",
			SSH: SSHConfig{
				Port:           22,
				AuthMethod:     "password",
				ConnectTimeout: "15s",
			},
		},
		Oracle: OracleConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.1,
			Timeout:     "60s",
			MaxRetries:  3,
		},
		Execution: ExecutionConfig{
			MaxIterationsPerStep: 10,
			DefaultTotalTimeout:  "10m",
			DefaultIdleTimeout:   "60s",
			MirrorOutput:         true,
			LogDir:               "agent_logs",
		},
		LoopDetect: LoopDetectConfig{
			Enabled:                    &enabled,
			DirectRepeatThreshold:      3,
			ErrorLoopThreshold:         4,
			CommandSimilarityThreshold: 0.85,
			OutputSimilarityThreshold:  0.80,
			ErrorSimilarityThreshold:   0.75,
		},
		Interaction: InteractionConfig{
			Mode: "console",
		},
		Knowledge: KnowledgeConfig{
			Enabled: true,
			Path:    "autodeploy_knowledge.db",
		},
	}
}

// Load reads the YAML file at path (optional), layers it over defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides pulls credentials from the environment. Env values
// win over file values so secrets can stay out of config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTODEPLOY_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if c.Oracle.APIKey == "" {
		switch c.Oracle.Provider {
		case "gemini":
			c.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
		case "deepseek":
			c.Oracle.APIKey = os.Getenv("DEEPSEEK_API_KEY")
		case "openrouter":
			c.Oracle.APIKey = os.Getenv("OPENROUTER_API_KEY")
		default:
			c.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("AUTODEPLOY_SSH_PASSWORD"); v != "" {
		c.Target.SSH.Password = v
	}
}

// Validate rejects configurations that cannot produce a working run.
func (c *Config) Validate() error {
	switch c.Target.Mode {
	case "local":
	case "ssh":
		if c.Target.SSH.Host == "" {
			return fmt.Errorf("config: target.ssh.host is required in ssh mode")
		}
		if c.Target.SSH.User == "" {
			return fmt.Errorf("config: target.ssh.user is required in ssh mode")
		}
		switch c.Target.SSH.AuthMethod {
		case "password", "key":
		default:
			return fmt.Errorf("config: unknown ssh auth_method %q", c.Target.SSH.AuthMethod)
		}
	default:
		return fmt.Errorf("config: unknown target.mode %q", c.Target.Mode)
	}

	if c.Execution.MaxIterationsPerStep <= 0 {
		return fmt.Errorf("config: execution.max_iterations_per_step must be positive")
	}
	if _, err := c.TotalTimeout(); err != nil {
		return err
	}
	if _, err := c.IdleTimeout(); err != nil {
		return err
	}
	return nil
}

// TotalTimeout parses the default total timeout.
func (c *Config) TotalTimeout() (time.Duration, error) {
	return parseDuration("execution.default_total_timeout", c.Execution.DefaultTotalTimeout, 10*time.Minute)
}

// IdleTimeout parses the default idle timeout.
func (c *Config) IdleTimeout() (time.Duration, error) {
	return parseDuration("execution.default_idle_timeout", c.Execution.DefaultIdleTimeout, time.Minute)
}

// OracleTimeout parses the oracle request timeout.
func (c *Config) OracleTimeout() (time.Duration, error) {
	return parseDuration("oracle.timeout", c.Oracle.Timeout, time.Minute)
}

// SSHConnectTimeout parses the ssh dial timeout.
func (c *Config) SSHConnectTimeout() (time.Duration, error) {
	return parseDuration("target.ssh.connect_timeout", c.Target.SSH.ConnectTimeout, 15*time.Second)
}

// LoopDetectEnabled resolves the optional enabled flag.
func (c *Config) LoopDetectEnabled() bool {
	if c.LoopDetect.Enabled == nil {
		return true
	}
	return *c.LoopDetect.Enabled
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", field)
	}
	return d, nil
}
