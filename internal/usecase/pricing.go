package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"costcompass/internal/domain"
	"costcompass/internal/infra/tracer"
)

const (
	agentTypePricingLive     = "aws_pricing_live"
	agentTypePricingFallback = "aws_pricing_fallback"
	agentTypePricingError    = "aws_pricing_error"

	// maxToolIterations bounds the tool-use loop inside one query.
	maxToolIterations = 4

	fallbackBanner = "Real-time pricing data temporarily unavailable - using knowledge base estimates. " +
		"Verify exact figures with the AWS Pricing Calculator before committing."
)

const pricingSystemPrompt = `You are an AWS cost analysis assistant with access to a live pricing data tool.
Use the tool to fetch current prices before estimating. Always derive monthly figures
from hourly rates using 730 hours per month, show your arithmetic, and state the
region and instance configuration you priced.`

const pricingFallbackPrompt = `You are an AWS cost analysis assistant working without live pricing data.
Answer from general knowledge of AWS pricing. You MUST clearly identify every figure
as an estimate, derive monthly figures using 730 hours per month, and recommend
verifying with the AWS Pricing Calculator.`

// PricingAgentConfig parameterizes a pricing agent instance.
type PricingAgentConfig struct {
	Model      domain.ModelConfig
	MaxTurns   int
	TokenCap   int
	KeepRecent int
	CacheSize  int
}

// PricingAgent estimates AWS service costs. Execution is tiered: the live
// pricing tool when available, the model's own knowledge when not, and a
// structured guidance message when both fail. Process never returns a raw
// error; failures are converted in-band.
type PricingAgent struct {
	llm     domain.LLMProvider
	tools   domain.ToolSource // nil when no pricing source is configured
	cache   *ResponseCache
	convCtx *ConversationContext
	cfg     PricingAgentConfig
	logger  *slog.Logger

	mu           sync.Mutex
	totalQueries int64
	cacheHits    int64
	toolCalls    int64
	avgResponse  time.Duration
}

// NewPricingAgent creates a pricing agent. tools may be nil; the agent then
// runs permanently in the knowledge-only tier.
func NewPricingAgent(llm domain.LLMProvider, tools domain.ToolSource, counter *TokenCounter, cfg PricingAgentConfig, logger *slog.Logger) *PricingAgent {
	return &PricingAgent{
		llm:     llm,
		tools:   tools,
		cache:   NewResponseCache(cfg.CacheSize),
		convCtx: NewConversationContext(cfg.MaxTurns, cfg.TokenCap, cfg.KeepRecent, counter),
		cfg:     cfg,
		logger:  logger,
	}
}

// Capabilities implements domain.SpecializedAgent.
func (a *PricingAgent) Capabilities() []domain.AgentCapability {
	return []domain.AgentCapability{
		{
			Name:                "aws_cost_analysis",
			Description:         "Estimate and analyze AWS service costs with live pricing data",
			Keywords:            []string{"cost", "price", "pricing", "estimate", "budget", "billing"},
			Phrases:             []string{"how much", "cost of", "price for", "monthly cost"},
			Priority:            8,
			ConfidenceThreshold: 0.3,
		},
		{
			Name:                "aws_optimization",
			Description:         "Suggest cheaper configurations and cost optimizations",
			Keywords:            []string{"optimize", "reduce", "save", "cheaper", "efficient"},
			Phrases:             []string{"save money", "reduce cost", "optimize spending"},
			Priority:            7,
			ConfidenceThreshold: 0.3,
		},
		{
			Name:                "aws_architecture_costing",
			Description:         "Cost out complete architectures across services",
			Keywords:            []string{"architecture", "infrastructure", "setup", "deployment"},
			Phrases:             []string{"total cost", "architecture cost", "infrastructure cost"},
			Priority:            6,
			ConfidenceThreshold: 0.3,
		},
	}
}

// Metadata implements domain.SpecializedAgent.
func (a *PricingAgent) Metadata() domain.AgentMetadata {
	return domain.AgentMetadata{
		Name:             "AWS Pricing Agent",
		Description:      "Estimates AWS service costs using live pricing data with knowledge-base fallback",
		Version:          "1.0.0",
		Author:           "costcompass",
		Capabilities:     a.Capabilities(),
		Model:            a.cfg.Model,
		SystemPrompt:     pricingSystemPrompt,
		RequiredTools:    []string{"get_pricing"},
		RequiredServices: []string{"bedrock", "aws-pricing-mcp"},
		Enabled:          true,
	}
}

// Process implements domain.SpecializedAgent.
func (a *PricingAgent) Process(ctx context.Context, query string, history []domain.Message) *domain.AgentResponse {
	ctx, span := tracer.StartSpan(ctx, "pricing.process")
	defer span.End()

	start := time.Now()
	a.mu.Lock()
	a.totalQueries++
	a.mu.Unlock()

	live := a.tools != nil && a.tools.Available()

	if cached, cachedLive, ok := a.cache.Get(query); ok {
		a.mu.Lock()
		a.cacheHits++
		a.mu.Unlock()
		a.logger.Debug("pricing cache hit", "query_len", len(query))
		// Report the tier that produced the answer, not availability now.
		resp := a.successResponse(cached, cachedLive, true, time.Since(start))
		tracer.SetOK(span)
		return resp
	}

	text, usedLive, err := a.runTiers(ctx, query, history, live)
	elapsed := time.Since(start)
	a.recordResponseTime(elapsed)

	if err != nil {
		tracer.RecordError(span, err)
		message, hints := ErrorGuidance(err.Error())
		a.logger.Error("pricing query failed in all tiers", "error", err)
		return &domain.AgentResponse{
			Status:           domain.StatusError,
			Response:         FormatGuidance(message, hints),
			AgentType:        agentTypePricingError,
			Confidence:       domain.ConfidenceLow,
			ResponseTime:     elapsed,
			Stats:            a.stats(),
			ContextLength:    a.convCtx.Len(),
			ScenariosTracked: len(a.convCtx.Scenarios()),
			Troubleshooting:  hints,
			Err:              err.Error(),
		}
	}

	a.convCtx.Record(query, text)
	// Cache only after the full call chain succeeded, so a cancelled or
	// failed request can never poison the cache.
	a.cache.Put(query, text, usedLive)

	tracer.SetOK(span)
	return a.successResponse(text, usedLive, false, elapsed)
}

// runTiers attempts the tool-augmented tier, then the knowledge-only tier.
// It returns the response text and whether live data was used.
func (a *PricingAgent) runTiers(ctx context.Context, query string, history []domain.Message, live bool) (string, bool, error) {
	var tier1Err error
	if live {
		text, err := a.toolAugmented(ctx, query, history)
		if err == nil {
			return text, true, nil
		}
		tier1Err = err
		a.logger.Warn("tool tier failed, falling back to knowledge tier", "error", err)
	}

	text, err := a.knowledgeOnly(ctx, query, history)
	if err == nil {
		return text, false, nil
	}
	if tier1Err != nil {
		return "", false, fmt.Errorf("tool tier: %v; knowledge tier: %w", tier1Err, err)
	}
	return "", false, err
}

// toolAugmented invokes the model with the pricing tool attached and runs
// the tool-use loop to completion.
func (a *PricingAgent) toolAugmented(ctx context.Context, query string, history []domain.Message) (string, error) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: pricingSystemPrompt},
	}
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: a.buildPrompt(query)})

	req := domain.ChatRequest{
		Model:       a.cfg.Model.ModelID,
		Messages:    messages,
		Tools:       a.tools.Tools(),
		MaxTokens:   a.cfg.Model.MaxTokens,
		Temperature: a.cfg.Model.Temperature,
		TopP:        a.cfg.Model.TopP,
	}

	for i := 0; i < maxToolIterations; i++ {
		resp, err := a.llm.Chat(ctx, req)
		if err != nil {
			return "", domain.WrapOp("PricingAgent.toolAugmented", err)
		}

		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		req.Messages = append(req.Messages, resp.Message)
		for _, call := range resp.Message.ToolCalls {
			a.mu.Lock()
			a.toolCalls++
			a.mu.Unlock()

			result, err := a.tools.Execute(ctx, call)
			if err != nil {
				// A failed tool call drops the whole tier; retrying the
				// same call with the same parameters is never correct.
				return "", domain.WrapOp("PricingAgent.toolAugmented", err)
			}
			if result.IsError {
				return "", domain.NewDomainError("PricingAgent.toolAugmented", domain.ErrToolFailure, result.Content)
			}
			req.Messages = append(req.Messages, domain.Message{
				Role:    domain.RoleTool,
				Name:    call.Name,
				Content: result.Content,
			})
		}
	}

	return "", domain.NewDomainError("PricingAgent.toolAugmented", domain.ErrMaxIterations, "tool loop did not converge")
}

// knowledgeOnly invokes the model with no tools and the fallback prompt.
// The response must self-identify as an estimate; a banner is prepended
// when the model did not include one.
func (a *PricingAgent) knowledgeOnly(ctx context.Context, query string, history []domain.Message) (string, error) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: pricingFallbackPrompt},
	}
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: a.buildPrompt(query)})

	resp, err := a.llm.Chat(ctx, domain.ChatRequest{
		Model:       a.cfg.Model.ModelID,
		Messages:    messages,
		MaxTokens:   a.cfg.Model.MaxTokens,
		Temperature: a.cfg.Model.Temperature,
		TopP:        a.cfg.Model.TopP,
	})
	if err != nil {
		return "", domain.WrapOp("PricingAgent.knowledgeOnly", err)
	}

	text := resp.Message.Content
	if !strings.Contains(strings.ToLower(text), "estimat") {
		text = fallbackBanner + "\n\n" + text
	}
	return text, nil
}

// buildPrompt prepends labeled context sections to the raw query: the
// architecture under discussion, the cost baseline, the last turns, and a
// comparison flag when scenario history applies.
func (a *PricingAgent) buildPrompt(query string) string {
	var b strings.Builder

	arch := a.convCtx.Architecture()
	if !arch.Empty() {
		b.WriteString("Current architecture: ")
		if len(arch.Services) > 0 {
			b.WriteString("services=" + strings.Join(arch.Services, ",") + " ")
		}
		if len(arch.InstanceTypes) > 0 {
			b.WriteString("instances=" + strings.Join(arch.InstanceTypes, ",") + " ")
		}
		if len(arch.Regions) > 0 {
			b.WriteString("regions=" + strings.Join(arch.Regions, ",") + " ")
		}
		b.WriteString("\n")
	}

	if baseline := a.convCtx.Baseline(); !baseline.Empty() {
		if baseline.MonthlyTotal > 0 {
			fmt.Fprintf(&b, "Baseline costs: $%.2f/month\n", baseline.MonthlyTotal)
		} else if baseline.AnnualTotal > 0 {
			fmt.Fprintf(&b, "Baseline costs: $%.2f/year\n", baseline.AnnualTotal)
		}
	}

	if recent := a.convCtx.RecentTurns(2); len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", truncate(t.Query, queryLabelMax), truncate(t.Response, 200))
		}
	}

	if IsComparisonQuery(query, ClassifyQuery(query)) && len(a.convCtx.Scenarios()) > 0 {
		b.WriteString("This is a comparison query; prior scenario context applies.\n")
	}

	if b.Len() == 0 {
		return query
	}
	return b.String() + "\nUser Query: " + query
}

func (a *PricingAgent) successResponse(text string, live, cached bool, elapsed time.Duration) *domain.AgentResponse {
	agentType := agentTypePricingFallback
	confidence := domain.ConfidenceMedium
	if live {
		agentType = agentTypePricingLive
		confidence = domain.ConfidenceHigh
	}

	arch := a.convCtx.Architecture()
	resp := &domain.AgentResponse{
		Status:              domain.StatusSuccess,
		Response:            text,
		AgentType:           agentType,
		DataSourceAvailable: live,
		Confidence:          confidence,
		Cached:              cached,
		ResponseTime:        elapsed,
		Stats:               a.stats(),
		ContextLength:       a.convCtx.Len(),
		ScenariosTracked:    len(a.convCtx.Scenarios()),
	}
	if !arch.Empty() {
		resp.Architecture = &arch
	}
	if baseline := a.convCtx.Baseline(); !baseline.Empty() {
		resp.BaselineCosts = baseline
	}
	return resp
}

func (a *PricingAgent) recordResponseTime(sample time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.totalQueries
	if n <= 1 {
		a.avgResponse = sample
		return
	}
	a.avgResponse = time.Duration((int64(a.avgResponse)*(n-1) + int64(sample)) / n)
}

func (a *PricingAgent) stats() domain.PerformanceStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.PerformanceStats{
		TotalQueries:    a.totalQueries,
		CacheHits:       a.cacheHits,
		ToolCalls:       a.toolCalls,
		AvgResponseTime: a.avgResponse,
	}
}

// Context exposes the agent's conversation context for status surfaces.
func (a *PricingAgent) Context() *ConversationContext {
	return a.convCtx
}

// Reset clears the conversation context and cache.
func (a *PricingAgent) Reset() {
	a.convCtx.Reset()
	a.cache.Clear()
}

var _ domain.SpecializedAgent = (*PricingAgent)(nil)
