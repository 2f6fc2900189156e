package domain

import (
	"context"
	"time"
)

// AgentCapability is a declarative matching rule: a query that hits the
// capability's keywords or phrases is a candidate for the owning agent.
// Capabilities are immutable once declared.
type AgentCapability struct {
	Name        string   `json:"name"        yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords"    yaml:"keywords"`
	Phrases     []string `json:"phrases"     yaml:"phrases"`
	// Priority ranges 1-10; higher wins when capabilities overlap.
	Priority int `json:"priority" yaml:"priority"`
	// ConfidenceThreshold is the minimum matcher score required before
	// the registry will route to the owning agent on this capability.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// ModelConfig carries the opaque model settings handed to the LLM provider.
type ModelConfig struct {
	ModelID     string  `json:"model_id"    yaml:"model_id"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens"  yaml:"max_tokens"`
	TopP        float64 `json:"top_p"       yaml:"top_p"`
}

// AgentMetadata describes a registered agent. Enabled is the only field
// mutated after construction (via Registry.Enable/Disable).
type AgentMetadata struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Version          string            `json:"version"`
	Author           string            `json:"author"`
	Capabilities     []AgentCapability `json:"capabilities"`
	Model            ModelConfig       `json:"model"`
	SystemPrompt     string            `json:"-"`
	RequiredTools    []string          `json:"required_tools,omitempty"`
	RequiredServices []string          `json:"required_services,omitempty"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	Enabled          bool              `json:"enabled"`
}

// MinThreshold returns the smallest confidence threshold among the agent's
// capabilities, or 0 when none are declared.
func (m AgentMetadata) MinThreshold() float64 {
	if len(m.Capabilities) == 0 {
		return 0
	}
	min := m.Capabilities[0].ConfidenceThreshold
	for _, c := range m.Capabilities[1:] {
		if c.ConfidenceThreshold < min {
			min = c.ConfidenceThreshold
		}
	}
	return min
}

// MaxPriority returns the highest priority among the agent's capabilities,
// or 0 when none are declared.
func (m AgentMetadata) MaxPriority() int {
	max := 0
	for _, c := range m.Capabilities {
		if c.Priority > max {
			max = c.Priority
		}
	}
	return max
}

// ResponseStatus marks an agent response as a success or a handled failure.
type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusError   ResponseStatus = "error"
)

// Confidence buckets a numeric match score for user-facing reporting.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFromScore maps a matcher score to its reporting bucket.
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score >= 0.7:
		return ConfidenceHigh
	case score >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// PerformanceStats are running counters kept by each specialized agent.
type PerformanceStats struct {
	TotalQueries    int64         `json:"total_queries"`
	CacheHits       int64         `json:"cache_hits"`
	ToolCalls       int64         `json:"tool_calls"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// AgentResponse is the envelope every specialized agent returns. Failures are
// reported in-band (StatusError plus guidance text); Process never surfaces
// a raw error to its caller.
type AgentResponse struct {
	Status              ResponseStatus   `json:"status"`
	Response            string           `json:"response"`
	AgentType           string           `json:"agent_type"`
	DataSourceAvailable bool             `json:"data_source_available"`
	Confidence          Confidence       `json:"confidence"`
	Cached              bool             `json:"cached"`
	ResponseTime        time.Duration    `json:"response_time"`
	Stats               PerformanceStats `json:"performance_stats"`
	ContextLength       int              `json:"context_length"`
	Architecture        *Architecture    `json:"current_architecture,omitempty"`
	BaselineCosts       *CostEstimate    `json:"baseline_costs,omitempty"`
	ScenariosTracked    int              `json:"scenarios_tracked"`
	Troubleshooting     []string         `json:"troubleshooting,omitempty"`
	Err                 string           `json:"error,omitempty"`
}

// SpecializedAgent is the contract every domain agent implements. The
// registry stores agents behind this interface; routing never depends on
// concrete types.
type SpecializedAgent interface {
	// Process handles one query. history carries shared turns from the
	// caller (router context); it may be nil.
	Process(ctx context.Context, query string, history []Message) *AgentResponse
	// Capabilities returns the agent's declared matching rules.
	Capabilities() []AgentCapability
	// Metadata returns the agent's full description.
	Metadata() AgentMetadata
}

// AgentFactory builds a specialized agent on demand. Registered factories
// are invoked at most once per registry; the resulting instance is memoized.
type AgentFactory func() (SpecializedAgent, error)

// Architecture is the cumulative picture of the infrastructure under
// discussion in a session. Services only grow within a session (set union);
// the whole struct is cleared only by an explicit reset.
type Architecture struct {
	Services      []string          `json:"services,omitempty"`
	InstanceTypes []string          `json:"instance_types,omitempty"`
	Regions       []string          `json:"regions,omitempty"`
	UsagePatterns map[string]string `json:"usage_patterns,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at,omitempty"`
}

// Empty reports whether no architecture facts have been captured yet.
func (a *Architecture) Empty() bool {
	return a == nil || (len(a.Services) == 0 && len(a.InstanceTypes) == 0 &&
		len(a.Regions) == 0 && len(a.UsagePatterns) == 0)
}

// CostEstimate holds extracted cost figures. It is overwritten, never
// merged, when a newer turn yields figures.
type CostEstimate struct {
	MonthlyTotal     float64            `json:"monthly_total,omitempty"`
	AnnualTotal      float64            `json:"annual_total,omitempty"`
	ServiceBreakdown map[string]float64 `json:"service_breakdown,omitempty"`
	Currency         string             `json:"currency,omitempty"`
}

// Empty reports whether no cost figures were extracted.
func (c *CostEstimate) Empty() bool {
	return c == nil || (c.MonthlyTotal == 0 && c.AnnualTotal == 0 && len(c.ServiceBreakdown) == 0)
}

// QueryType is the coarse classification of a single turn, used for context
// summarization and scenario tracking.
type QueryType string

const (
	QueryComparison   QueryType = "comparison"
	QueryOptimization QueryType = "optimization"
	QueryScenario     QueryType = "scenario"
	QueryModification QueryType = "modification"
	QueryPricing      QueryType = "pricing"
	QueryGeneral      QueryType = "general"
)
