package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	MCP     MCPConfig     `yaml:"mcp"`
	Routing RoutingConfig `yaml:"routing"`
	Context ContextConfig `yaml:"context"`
	Cache   CacheConfig   `yaml:"cache"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider       string               `yaml:"provider"` // "bedrock"
	Region         string               `yaml:"region"`
	Model          string               `yaml:"model"`
	Temperature    float64              `yaml:"temperature"`
	MaxTokens      int                  `yaml:"max_tokens"`
	TopP           float64              `yaml:"top_p"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the LLM provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// MCPConfig holds Model Context Protocol bridge settings.
type MCPConfig struct {
	Enabled     bool          `yaml:"enabled"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Servers     []MCPServer   `yaml:"servers,omitempty"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// RoutingConfig holds agent routing settings.
type RoutingConfig struct {
	// DefaultThreshold is used when an agent capability does not declare
	// its own confidence threshold.
	DefaultThreshold float64 `yaml:"default_threshold"`
	// FallbackAgent receives queries that match no capability but contain
	// domain keywords. Empty disables keyword fallback.
	FallbackAgent string `yaml:"fallback_agent"`
}

// ContextConfig holds conversation context budgets.
type ContextConfig struct {
	AgentMaxTurns   int `yaml:"agent_max_turns"`   // per-agent sliding window
	AgentTokenCap   int `yaml:"agent_token_cap"`   // summarization trigger
	KeepRecent      int `yaml:"keep_recent"`       // raw turns preserved on summarize
	SessionMaxMsgs  int `yaml:"session_max_msgs"`  // orchestrator-level window
	DigestWindow    int `yaml:"digest_window"`     // recent messages in the digest
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client request rate settings.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "bedrock",
			Region:      "us-east-1",
			Model:       "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Temperature: 0.3,
			MaxTokens:   2000,
			TopP:        0.9,
			Timeout:     60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		MCP: MCPConfig{
			Enabled:     true,
			CallTimeout: 30 * time.Second,
		},
		Routing: RoutingConfig{
			DefaultThreshold: 0.3,
			FallbackAgent:    "pricing",
		},
		Context: ContextConfig{
			AgentMaxTurns:  10,
			AgentTokenCap:  8000,
			KeepRecent:     2,
			SessionMaxMsgs: 20,
			DigestWindow:   5,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    ":8080",
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     5,
				Burst:   10,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps COSTCOMPASS_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COSTCOMPASS_LLM_REGION"); v != "" {
		cfg.LLM.Region = v
	}
	if v := os.Getenv("COSTCOMPASS_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("COSTCOMPASS_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("COSTCOMPASS_MCP_ENABLED"); v == "false" {
		cfg.MCP.Enabled = false
	}
	if v := os.Getenv("COSTCOMPASS_MCP_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MCP.CallTimeout = d
		}
	}
	if v := os.Getenv("COSTCOMPASS_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("COSTCOMPASS_GATEWAY_ENABLED"); v == "false" {
		cfg.Gateway.Enabled = false
	}
	if v := os.Getenv("COSTCOMPASS_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("COSTCOMPASS_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("COSTCOMPASS_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("COSTCOMPASS_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("COSTCOMPASS_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}
