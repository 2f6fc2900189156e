package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateMCP(cfg, ve)
	validateRouting(cfg, ve)
	validateContext(cfg, ve)
	validateCache(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.Provider != "bedrock" {
		ve.Add("llm.provider %q is invalid (want: bedrock)", cfg.LLM.Provider)
	}
	if cfg.LLM.Region == "" {
		ve.Add("llm.region must not be empty")
	}
	if cfg.LLM.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 1 {
		ve.Add("llm.temperature must be in [0, 1]")
	}
	if cfg.LLM.MaxTokens <= 0 {
		ve.Add("llm.max_tokens must be > 0")
	}
	if cfg.LLM.Timeout <= 0 {
		ve.Add("llm.timeout must be > 0")
	}
	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	if !cfg.MCP.Enabled {
		return
	}
	if cfg.MCP.CallTimeout <= 0 {
		ve.Add("mcp.call_timeout must be > 0")
	}
	for i, s := range cfg.MCP.Servers {
		if s.Name == "" {
			ve.Add("mcp.servers[%d].name must not be empty", i)
		}
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				ve.Add("mcp.servers[%d] (%s): command is required for stdio transport", i, s.Name)
			}
		case "http":
			if s.URL == "" {
				ve.Add("mcp.servers[%d] (%s): url is required for http transport", i, s.Name)
			}
		default:
			ve.Add("mcp.servers[%d].transport %q is invalid (want: stdio, http)", i, s.Transport)
		}
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	if cfg.Routing.DefaultThreshold < 0 || cfg.Routing.DefaultThreshold > 1 {
		ve.Add("routing.default_threshold must be in [0, 1]")
	}
}

func validateContext(cfg *Config, ve *ValidationError) {
	if cfg.Context.AgentMaxTurns <= 0 {
		ve.Add("context.agent_max_turns must be > 0")
	}
	if cfg.Context.AgentTokenCap <= 0 {
		ve.Add("context.agent_token_cap must be > 0")
	}
	if cfg.Context.KeepRecent < 0 {
		ve.Add("context.keep_recent must be >= 0")
	}
	if cfg.Context.KeepRecent > cfg.Context.AgentMaxTurns {
		ve.Add("context.keep_recent must not exceed context.agent_max_turns")
	}
	if cfg.Context.SessionMaxMsgs <= 0 {
		ve.Add("context.session_max_msgs must be > 0")
	}
	if cfg.Context.DigestWindow <= 0 {
		ve.Add("context.digest_window must be > 0")
	}
}

func validateCache(cfg *Config, ve *ValidationError) {
	if cfg.Cache.Enabled && cfg.Cache.MaxEntries <= 0 {
		ve.Add("cache.max_entries must be > 0 when cache is enabled")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr must not be empty when gateway is enabled")
	}
	if cfg.Gateway.RateLimit.Enabled {
		if cfg.Gateway.RateLimit.RPS <= 0 {
			ve.Add("gateway.rate_limit.rps must be > 0 when rate limiting is enabled")
		}
		if cfg.Gateway.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}
}
