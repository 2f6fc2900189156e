package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"costcompass/internal/adapter/gateway"
	"costcompass/internal/adapter/llm"
	"costcompass/internal/adapter/tool"
	"costcompass/internal/domain"
	"costcompass/internal/infra/config"
	"costcompass/internal/infra/logger"
	"costcompass/internal/infra/tracer"
	"costcompass/internal/usecase"
	"costcompass/internal/usecase/orchestrate"
)

const pricingAgentID = "pricing"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	interactive := flag.Bool("interactive", false, "run a terminal chat session instead of the HTTP gateway")
	flag.Parse()

	if err := run(*configPath, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, interactive bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	tools, closeTools, err := buildToolSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeTools()

	registry := usecase.NewRegistry(usecase.NewCapabilityMatcher(usecase.DefaultScoring()), log)
	counter := usecase.NewTokenCounter()

	err = registry.RegisterFactory(pricingAgentID, func() (domain.SpecializedAgent, error) {
		return usecase.NewPricingAgent(provider, tools, counter, usecase.PricingAgentConfig{
			Model: domain.ModelConfig{
				ModelID:     cfg.LLM.Model,
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   cfg.LLM.MaxTokens,
				TopP:        cfg.LLM.TopP,
			},
			MaxTurns:   cfg.Context.AgentMaxTurns,
			TokenCap:   cfg.Context.AgentTokenCap,
			KeepRecent: cfg.Context.KeepRecent,
			CacheSize:  cfg.Cache.MaxEntries,
		}, log), nil
	})
	if err != nil {
		return fmt.Errorf("register pricing agent: %w", err)
	}

	hintAgent := cfg.Routing.FallbackAgent
	if hintAgent != "" && registry.Get(hintAgent) == nil {
		log.Warn("routing fallback agent is not registered, disabling keyword fallback",
			"agent", hintAgent)
		hintAgent = ""
	}

	router := orchestrate.NewRouterAgent(provider, registry, log)
	factory := func(sessionID string) *orchestrate.Orchestrator {
		return orchestrate.NewOrchestrator(router, registry, sessionID,
			cfg.Context.SessionMaxMsgs, cfg.Context.DigestWindow,
			hintAgent, log)
	}

	log.Info("costcompass starting",
		"model", cfg.LLM.Model,
		"mcp_enabled", cfg.MCP.Enabled,
		"gateway_enabled", cfg.Gateway.Enabled)

	if interactive || !cfg.Gateway.Enabled {
		return runInteractive(ctx, factory("local"))
	}

	srv := gateway.NewServer(registry, factory, cfg.Gateway, log)
	return srv.Start(ctx)
}

func buildProvider(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, error) {
	bedrock, err := llm.NewBedrockProvider(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("init bedrock provider: %w", err)
	}
	if !cfg.LLM.CircuitBreaker.Enabled {
		return bedrock, nil
	}
	return llm.NewCircuitBreakerProvider(bedrock, cfg.LLM.CircuitBreaker, log), nil
}

// buildToolSource returns nil when MCP is disabled or unreachable; the
// pricing agent then runs in its knowledge-only tier.
func buildToolSource(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.ToolSource, func(), error) {
	noop := func() {}
	if !cfg.MCP.Enabled || len(cfg.MCP.Servers) == 0 {
		return nil, noop, nil
	}

	bridge, err := tool.NewMCPBridge(ctx, cfg.MCP, log)
	if err != nil {
		log.Warn("mcp bridge unavailable, continuing without live pricing", "error", err)
		return nil, noop, nil
	}

	limited := tool.NewRateLimitedSource(bridge,
		cfg.Gateway.RateLimit.RPS, cfg.Gateway.RateLimit.Burst, log)
	return limited, bridge.Close, nil
}

func runInteractive(ctx context.Context, orch *orchestrate.Orchestrator) error {
	fmt.Println("costcompass interactive session (type 'quit' to exit, 'reset' to clear context)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		switch {
		case query == "":
			continue
		case query == "quit" || query == "exit":
			return nil
		case query == "reset":
			orch.Reset()
			fmt.Println("context cleared")
			continue
		}

		result := orch.Process(ctx, query)
		fmt.Printf("\n[%s] %s\n\n", result.AgentType, result.Content)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
