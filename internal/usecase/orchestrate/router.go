package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"costcompass/internal/domain"
	"costcompass/internal/infra/tracer"
	"costcompass/internal/usecase"
)

const routerSystemPrompt = `You are a routing assistant. For each user query, either answer directly
or delegate to exactly one of the available specialist tools. Pass the user's query through to the
specialist unchanged and return the specialist's answer as your own, without describing the routing.`

// Intent is the router's classification of one query.
type Intent struct {
	Target     string            `json:"target"` // agent id or "general"
	Confidence domain.Confidence `json:"confidence"`
	Score      float64           `json:"score"`
	Reasoning  string            `json:"reasoning"`
}

// RouterResult is the router's answer for one query.
type RouterResult struct {
	Content       string `json:"content"`
	AgentType     string `json:"agent_type"`
	Intent        Intent `json:"intent"`
	ContextLength int    `json:"context_length"`
}

// RouterAgent classifies queries against the registry and delegates to
// specialized agents through a model-visible toolset. One delegate tool per
// enabled agent is built from the registry's current enabled set and reused
// until InvalidateDelegates is called; tools are not regenerated per request.
type RouterAgent struct {
	llm      domain.LLMProvider
	registry *usecase.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	delegates map[string]domain.Tool
	stale     bool
}

// NewRouterAgent creates a router over the given registry.
func NewRouterAgent(llm domain.LLMProvider, registry *usecase.Registry, logger *slog.Logger) *RouterAgent {
	return &RouterAgent{
		llm:      llm,
		registry: registry,
		logger:   logger,
		stale:    true,
	}
}

// InvalidateDelegates marks the delegate toolset for rebuild. Call after the
// registry's registered or enabled set changes.
func (r *RouterAgent) InvalidateDelegates() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

// delegateTools returns the current toolset, rebuilding it when stale.
func (r *RouterAgent) delegateTools() []domain.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stale || r.delegates == nil {
		r.delegates = make(map[string]domain.Tool)
		for _, id := range r.registry.EnabledIDs() {
			meta, ok := r.registry.Metadata(id)
			if !ok {
				continue
			}
			r.delegates[id] = domain.Tool{
				Name:        id,
				Description: meta.Description,
				Schema: domain.ToolSchema{
					Type: "object",
					Properties: map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "The user query to forward to this specialist",
						},
					},
					Required: []string{"query"},
				},
			}
		}
		r.stale = false
	}

	tools := make([]domain.Tool, 0, len(r.delegates))
	for _, id := range r.registry.EnabledIDs() {
		if t, ok := r.delegates[id]; ok {
			tools = append(tools, t)
		}
	}
	return tools
}

// Classify scores the query against the registry and buckets the result.
// A registry miss is not an error: it maps to the "general" target.
func (r *RouterAgent) Classify(query string) Intent {
	id, score, ok := r.registry.FindBest(query, nil)
	if !ok {
		return Intent{
			Target:     "general",
			Confidence: domain.ConfidenceMedium,
			Score:      0,
			Reasoning:  "no specialized agent matched the query",
		}
	}
	return Intent{
		Target:     id,
		Confidence: domain.ConfidenceFromScore(score),
		Score:      score,
		Reasoning:  fmt.Sprintf("capability match on agent %q with confidence %.2f", id, score),
	}
}

// Process answers one query: classify, invoke the model with the delegate
// toolset, execute any delegation the model requests, and accumulate the
// final text. Delegation failures are converted to a user-facing apology,
// never propagated raw.
func (r *RouterAgent) Process(ctx context.Context, query string, history []domain.Message) (*RouterResult, error) {
	ctx, span := tracer.StartSpan(ctx, "router.process")
	defer span.End()

	intent := r.Classify(query)
	r.logger.Debug("query classified", "target", intent.Target, "confidence", intent.Confidence, "score", intent.Score)

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: routerSystemPrompt},
	}
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: query})

	req := domain.ChatRequest{
		Messages: messages,
		Tools:    r.delegateTools(),
	}

	agentType := "general"
	var content string

	resp, err := r.chat(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("RouterAgent.Process", err)
	}

	if len(resp.Message.ToolCalls) == 0 {
		content = resp.Message.Content
	} else {
		// The specialist's answer is the answer; feeding it back through
		// the model would only paraphrase it and leak routing rationale.
		call := resp.Message.ToolCalls[0]
		text, ok := r.delegate(ctx, call, query, history)
		if ok {
			agentType = call.Name
		}
		content = text
	}

	if content == "" {
		content = "I could not produce an answer for that query. Please try rephrasing it."
	}

	if intent.Target == "general" && intent.Score < 0.4 {
		content += "\n\nTip: naming specific AWS services, instance types, or regions helps me give a more precise answer."
	}

	tracer.SetOK(span)
	return &RouterResult{
		Content:       content,
		AgentType:     agentType,
		Intent:        intent,
		ContextLength: len(history),
	}, nil
}

// chat invokes the model, accumulating chunks into one response when the
// provider streams.
func (r *RouterAgent) chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	streamer, ok := r.llm.(domain.StreamingLLMProvider)
	if !ok {
		return r.llm.Chat(ctx, req)
	}

	ch, err := streamer.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	var toolCalls []domain.ToolCall
	for delta := range ch {
		b.WriteString(delta.Content)
		toolCalls = append(toolCalls, delta.ToolCalls...)
	}
	return &domain.ChatResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   b.String(),
			ToolCalls: toolCalls,
		},
	}, nil
}

// delegate forwards a model-requested tool call to the named agent and
// returns only its textual content. The routing rationale is never exposed.
func (r *RouterAgent) delegate(ctx context.Context, call domain.ToolCall, originalQuery string, history []domain.Message) (string, bool) {
	query := originalQuery
	if q, ok := call.Arguments["query"].(string); ok && q != "" {
		query = q
	}

	agent := r.registry.Get(call.Name)
	if agent == nil {
		r.logger.Warn("delegation target unavailable", "agent_id", call.Name)
		return r.apology(originalQuery), false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("agent panicked during delegation", "agent_id", call.Name, "panic", rec)
		}
	}()

	resp := agent.Process(ctx, query, history)
	if resp == nil {
		r.logger.Error("agent returned nil response", "agent_id", call.Name)
		return r.apology(originalQuery), false
	}
	return resp.Response, true
}

// apology builds retry guidance tailored by whether the query looked
// pricing-related.
func (r *RouterAgent) apology(query string) string {
	lowered := strings.ToLower(query)
	pricingLike := false
	for _, kw := range []string{"cost", "price", "pricing", "estimate", "budget"} {
		if strings.Contains(lowered, kw) {
			pricingLike = true
			break
		}
	}

	if pricingLike {
		return "I'm sorry, the pricing specialist is unavailable right now. " +
			"Please try again shortly, or rephrase with specific services and instance types " +
			"(for example: \"monthly cost of a t3.small EC2 instance in us-east-1\")."
	}
	return "I'm sorry, I couldn't complete that request. Please try again, " +
		"or rephrase your question with more specific details."
}
