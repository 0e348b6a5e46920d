// Package config loads the daemon's configuration from config.yaml under
// the Nova home directory. Configuration is read once at startup; there is
// no live reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sender is the identity stamped on outbound bridge messages.
const Sender = "Nova"

// TelemetryConfig holds the optional OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "stdout" or "otlp"
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// VoiceConfig holds the best-effort TTS settings.
type VoiceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"` // synthesizer binary; auto-detected when empty
}

// AnthropicConfig names the credentials for the optional direct correspondent.
type AnthropicConfig struct {
	APIKeyEnv string `yaml:"api_key_env"` // env var holding the key
	Model     string `yaml:"model"`
}

// ScheduleOverrides optionally replaces a task's fixed interval with a cron
// expression (5-field, minute resolution).
type ScheduleOverrides struct {
	Heartbeat string `yaml:"heartbeat"`
	Evolution string `yaml:"evolution"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	SocketPath string `yaml:"socket_path"`
	DataDir    string `yaml:"data_dir"`
	DBPath     string `yaml:"db_path"`
	BridgeDir  string `yaml:"bridge_dir"`
	LogLevel   string `yaml:"log_level"`

	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	EvolutionIntervalSeconds int `yaml:"evolution_interval_seconds"`
	BridgePollSeconds        int `yaml:"bridge_poll_seconds"`

	Schedule  ScheduleOverrides `yaml:"schedule"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Voice     VoiceConfig       `yaml:"voice"`
	Anthropic AnthropicConfig   `yaml:"anthropic"`

	// Resolved from Anthropic.APIKeyEnv at load time; never serialized.
	AnthropicAPIKey string `yaml:"-"`
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// EvolutionInterval returns the evolution period as a duration.
func (c Config) EvolutionInterval() time.Duration {
	return time.Duration(c.EvolutionIntervalSeconds) * time.Second
}

// BridgePollInterval returns the bridge poll period as a duration.
func (c Config) BridgePollInterval() time.Duration {
	return time.Duration(c.BridgePollSeconds) * time.Second
}

func defaultConfig() Config {
	return Config{
		SocketPath:               "/tmp/nova_socket",
		LogLevel:                 "info",
		HeartbeatIntervalSeconds: 180,
		EvolutionIntervalSeconds: 600,
		BridgePollSeconds:        10,
		Voice:                    VoiceConfig{Enabled: true},
		Anthropic: AnthropicConfig{
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Model:     "claude-3-5-sonnet-latest",
		},
	}
}

// HomeDir resolves the Nova home directory: NOVA_HOME when set, else ~/.nova.
func HomeDir() string {
	if override := os.Getenv("NOVA_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".nova")
}

// Load reads config.yaml from the Nova home directory, creating the home
// directory and a default config file on first run.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads configuration rooted at the given home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create nova home: %w", err)
	}

	configPath := filepath.Join(cfg.HomeDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
		if writeErr := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); writeErr != nil {
			return cfg, fmt.Errorf("write default config.yaml: %w", writeErr)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	cfg.AnthropicAPIKey = os.Getenv(cfg.Anthropic.APIKeyEnv)
	return cfg, nil
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.SocketPath) == "" {
		cfg.SocketPath = "/tmp/nova_socket"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(cfg.HomeDir, "data")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "consciousness.db")
	}
	if strings.TrimSpace(cfg.BridgeDir) == "" {
		cfg.BridgeDir = filepath.Join(cfg.HomeDir, "bridge")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HeartbeatIntervalSeconds <= 0 {
		cfg.HeartbeatIntervalSeconds = 180
	}
	if cfg.EvolutionIntervalSeconds <= 0 {
		cfg.EvolutionIntervalSeconds = 600
	}
	if cfg.BridgePollSeconds <= 0 {
		cfg.BridgePollSeconds = 10
	}
	if cfg.Anthropic.APIKeyEnv == "" {
		cfg.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "nova"
	}
}

func validate(cfg *Config) error {
	if strings.ContainsRune(cfg.SocketPath, '\n') {
		return fmt.Errorf("socket_path contains a newline")
	}
	switch cfg.Telemetry.Exporter {
	case "", "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter must be \"stdout\" or \"otlp\", got %q", cfg.Telemetry.Exporter)
	}
	return nil
}

// EnsureDirs creates every directory the daemon writes under.
func (c Config) EnsureDirs() error {
	dirs := []string{
		c.HomeDir,
		c.DataDir,
		filepath.Dir(c.DBPath),
		c.BridgeDir,
		filepath.Join(c.HomeDir, "logs"),
		filepath.Join(c.HomeDir, "voice_cache"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

const defaultConfigYAML = `# Nova daemon configuration. Read once at startup.
socket_path: /tmp/nova_socket
log_level: info

heartbeat_interval_seconds: 180
evolution_interval_seconds: 600
bridge_poll_seconds: 10

# Optional cron-expression overrides (5-field). When set, the matching
# periodic task fires on the cron schedule instead of its fixed interval.
schedule:
  heartbeat: ""
  evolution: ""

voice:
  enabled: true
  command: ""

telemetry:
  enabled: false
  exporter: stdout

anthropic:
  api_key_env: ANTHROPIC_API_KEY
  model: claude-3-5-sonnet-latest
`
