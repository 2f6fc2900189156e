package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"costcompass/internal/domain"
	"costcompass/internal/usecase"
)

// scriptedLLM replays outcomes in order and records requests.
type scriptedLLM struct {
	script   []scriptedStep
	requests []domain.ChatRequest
}

type scriptedStep struct {
	content   string
	toolCalls []domain.ToolCall
	err       error
}

func (s *scriptedLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.script) == 0 {
		return nil, errors.New("scriptedLLM: script exhausted")
	}
	step := s.script[0]
	s.script = s.script[1:]
	if step.err != nil {
		return nil, step.err
	}
	return &domain.ChatResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   step.content,
			ToolCalls: step.toolCalls,
		},
	}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

// cannedAgent answers every query with a fixed response.
type cannedAgent struct {
	meta     domain.AgentMetadata
	response *domain.AgentResponse
	queries  []string
}

func (a *cannedAgent) Process(ctx context.Context, query string, history []domain.Message) *domain.AgentResponse {
	a.queries = append(a.queries, query)
	return a.response
}

func (a *cannedAgent) Capabilities() []domain.AgentCapability { return a.meta.Capabilities }
func (a *cannedAgent) Metadata() domain.AgentMetadata         { return a.meta }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRegistry() *usecase.Registry {
	return usecase.NewRegistry(usecase.NewCapabilityMatcher(usecase.DefaultScoring()), discardLogger())
}

func pricingAgent(responseText string) *cannedAgent {
	return &cannedAgent{
		meta: domain.AgentMetadata{
			Name:        "pricing",
			Description: "Estimates AWS service costs",
			Capabilities: []domain.AgentCapability{{
				Name:                "cost_analysis",
				Keywords:            []string{"cost", "price", "estimate"},
				Phrases:             []string{"how much"},
				Priority:            8,
				ConfidenceThreshold: 0.3,
			}},
		},
		response: &domain.AgentResponse{
			Status:    domain.StatusSuccess,
			Response:  responseText,
			AgentType: "aws_pricing_live",
		},
	}
}

func TestClassifyBuckets(t *testing.T) {
	registry := newTestRegistry()
	if err := registry.RegisterInstance("pricing", pricingAgent("ok")); err != nil {
		t.Fatal(err)
	}
	router := NewRouterAgent(&scriptedLLM{}, registry, discardLogger())

	strong := router.Classify("how much does this cost, what is the price estimate")
	if strong.Target != "pricing" {
		t.Errorf("strong Target = %q, want pricing", strong.Target)
	}
	if strong.Confidence != domain.ConfidenceHigh {
		t.Errorf("strong Confidence = %v, want high", strong.Confidence)
	}

	miss := router.Classify("tell me a joke")
	if miss.Target != "general" {
		t.Errorf("miss Target = %q, want general", miss.Target)
	}
	if miss.Confidence != domain.ConfidenceMedium {
		t.Errorf("miss Confidence = %v, want medium", miss.Confidence)
	}
	if miss.Score != 0 {
		t.Errorf("miss Score = %v, want 0", miss.Score)
	}
}

func TestProcessDelegates(t *testing.T) {
	registry := newTestRegistry()
	agent := pricingAgent("A t3.small is about $15.18 per month.")
	if err := registry.RegisterInstance("pricing", agent); err != nil {
		t.Fatal(err)
	}

	llm := &scriptedLLM{script: []scriptedStep{
		{toolCalls: []domain.ToolCall{{
			ID:        "1",
			Name:      "pricing",
			Arguments: map[string]any{"query": "price of a t3.small"},
		}}},
	}}
	router := NewRouterAgent(llm, registry, discardLogger())

	res, err := router.Process(context.Background(), "price of a t3.small", nil)
	if err != nil {
		t.Fatal(err)
	}

	// The specialist's answer is returned verbatim, with no second model pass.
	if res.Content != "A t3.small is about $15.18 per month." {
		t.Errorf("Content = %q", res.Content)
	}
	if res.AgentType != "pricing" {
		t.Errorf("AgentType = %q, want pricing", res.AgentType)
	}
	if len(llm.requests) != 1 {
		t.Errorf("model called %d times, want 1", len(llm.requests))
	}
	if len(agent.queries) != 1 || agent.queries[0] != "price of a t3.small" {
		t.Errorf("delegated queries = %v", agent.queries)
	}

	// The model saw one delegate tool per enabled agent.
	if tools := llm.requests[0].Tools; len(tools) != 1 || tools[0].Name != "pricing" {
		t.Errorf("request tools = %+v", tools)
	}
}

func TestProcessDirectAnswer(t *testing.T) {
	registry := newTestRegistry()
	if err := registry.RegisterInstance("pricing", pricingAgent("unused")); err != nil {
		t.Fatal(err)
	}
	llm := &scriptedLLM{script: []scriptedStep{
		{content: "Hello! Ask me about AWS costs."},
	}}
	router := NewRouterAgent(llm, registry, discardLogger())

	res, err := router.Process(context.Background(), "hi there", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentType != "general" {
		t.Errorf("AgentType = %q, want general", res.AgentType)
	}
	if !strings.HasPrefix(res.Content, "Hello!") {
		t.Errorf("Content = %q", res.Content)
	}
}

func TestProcessApologyWhenAgentUnavailable(t *testing.T) {
	registry := newTestRegistry()
	// Register a factory that fails construction, so Get resolves to nil
	// while the delegate tool still exists.
	err := registry.RegisterFactory("pricing", func() (domain.SpecializedAgent, error) {
		return nil, errors.New("boom")
	})
	if err != nil {
		t.Fatal(err)
	}

	llm := &scriptedLLM{script: []scriptedStep{
		{toolCalls: []domain.ToolCall{{ID: "1", Name: "pricing", Arguments: map[string]any{"query": "cost of ec2"}}}},
	}}
	router := NewRouterAgent(llm, registry, discardLogger())

	res, err := router.Process(context.Background(), "cost of ec2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.AgentType != "general" {
		t.Errorf("AgentType = %q, want general after failed delegation", res.AgentType)
	}
	if !strings.Contains(res.Content, "pricing specialist is unavailable") {
		t.Errorf("Content = %q, want pricing-tailored apology", res.Content)
	}
}

func TestProcessUncertainTip(t *testing.T) {
	registry := newTestRegistry()
	agent := pricingAgent("A t3.small is about $15.18 per month.")
	if err := registry.RegisterInstance("pricing", agent); err != nil {
		t.Fatal(err)
	}
	llm := &scriptedLLM{script: []scriptedStep{
		{content: "I can help with AWS questions."},
		{content: "Chat away."},
	}}
	router := NewRouterAgent(llm, registry, discardLogger())

	// A registry miss is uncertain; guidance is appended.
	res, err := router.Process(context.Background(), "tell me a joke", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "Tip:") {
		t.Errorf("no guidance appended on an uncertain miss: %q", res.Content)
	}

	// A confident specialist match carries no tip.
	llm.script = []scriptedStep{{toolCalls: []domain.ToolCall{{
		ID: "1", Name: "pricing", Arguments: map[string]any{"query": "cost of a t3.small"},
	}}}}
	res, err = router.Process(context.Background(), "cost of a t3.small", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Content, "Tip:") {
		t.Errorf("guidance appended on a confident match: %q", res.Content)
	}
}

func TestProcessPropagatesModelError(t *testing.T) {
	registry := newTestRegistry()
	llm := &scriptedLLM{script: []scriptedStep{
		{err: errors.New("model overloaded")},
	}}
	router := NewRouterAgent(llm, registry, discardLogger())

	if _, err := router.Process(context.Background(), "anything", nil); err == nil {
		t.Fatal("expected an error when the model fails")
	}
}

func TestDelegateToolsFollowEnabledSet(t *testing.T) {
	registry := newTestRegistry()
	if err := registry.RegisterInstance("pricing", pricingAgent("ok")); err != nil {
		t.Fatal(err)
	}
	router := NewRouterAgent(&scriptedLLM{}, registry, discardLogger())

	if tools := router.delegateTools(); len(tools) != 1 {
		t.Fatalf("tools = %+v, want one delegate", tools)
	}

	if err := registry.Disable("pricing"); err != nil {
		t.Fatal(err)
	}
	router.InvalidateDelegates()
	if tools := router.delegateTools(); len(tools) != 0 {
		t.Errorf("tools = %+v, want none while disabled", tools)
	}

	if err := registry.Enable("pricing"); err != nil {
		t.Fatal(err)
	}
	router.InvalidateDelegates()
	if tools := router.delegateTools(); len(tools) != 1 {
		t.Errorf("tools = %+v, want delegate restored", tools)
	}
}
