package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"costcompass/internal/domain"
	"costcompass/internal/infra/tracer"
	"costcompass/internal/usecase"
)

const (
	defaultSessionMaxMsgs = 20
	defaultDigestWindow   = 5
	// overflowKeep is the window retained when the context_overflow
	// strategy fires.
	overflowKeep = 10
)

// Fallback strategy names reported in orchestration metadata.
const (
	strategyUncertainIntent = "uncertain_intent"
	strategyAgentFailure    = "agent_failure"
	strategyContextOverflow = "context_overflow"
)

// awsKeywords biases uncertain queries toward the pricing specialist.
var awsKeywords = []string{"aws", "amazon", "ec2", "rds", "s3", "lambda", "cost", "price", "pricing"}

// SessionMessage is one orchestrator-level conversation entry.
type SessionMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentType string    `json:"agent_type,omitempty"`
	Intent    *Intent   `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata annotates one orchestrated response.
type Metadata struct {
	SessionID          string `json:"session_id,omitempty"`
	Strategy           string `json:"fallback_strategy,omitempty"`
	RoutingHint        string `json:"routing_hint,omitempty"`
	NeedsClarification bool   `json:"needs_clarification,omitempty"`
	MessageCount       int    `json:"message_count"`
	ContextSummarized  bool   `json:"context_summarized,omitempty"`
}

// Result is the orchestrator's answer for one query.
type Result struct {
	Content        string   `json:"content"`
	AgentType      string   `json:"agent_type"`
	IntentAnalysis Intent   `json:"intent_analysis"`
	Metadata       Metadata `json:"orchestration_metadata"`
}

// Status is a read-only orchestrator health snapshot.
type Status struct {
	RouterAvailable  bool                  `json:"router_available"`
	AgentsRegistered int                   `json:"agents_registered"`
	MessageCount     int                   `json:"message_count"`
	LastAgentUsed    string                `json:"last_agent_used,omitempty"`
	Agents           []usecase.AgentStatus `json:"agents"`
}

// Orchestrator is the top-level facade over routing. It owns one
// session-scoped message log and applies the cross-cutting fallback
// strategies. One orchestrator serves one logical session; callers
// serialize access per session.
type Orchestrator struct {
	router    *RouterAgent
	registry  *usecase.Registry
	sessionID string
	maxMsgs   int
	digest    int
	hintAgent string // routing bias target for uncertain AWS queries
	logger    *slog.Logger

	messages  []SessionMessage
	services  map[string]bool // architecture services seen this session
	lastAgent string
}

// NewOrchestrator creates an orchestrator for one session. hintAgent names
// the agent favored when an uncertain query still looks domain-relevant;
// empty disables the keyword bias.
func NewOrchestrator(router *RouterAgent, registry *usecase.Registry, sessionID string, maxMsgs, digestWindow int, hintAgent string, logger *slog.Logger) *Orchestrator {
	if maxMsgs <= 0 {
		maxMsgs = defaultSessionMaxMsgs
	}
	if digestWindow <= 0 {
		digestWindow = defaultDigestWindow
	}
	return &Orchestrator{
		router:    router,
		registry:  registry,
		sessionID: sessionID,
		maxMsgs:   maxMsgs,
		digest:    digestWindow,
		hintAgent: hintAgent,
		logger:    logger,
		services:  make(map[string]bool),
	}
}

// SessionID returns the session identifier this orchestrator serves.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Process answers one query end to end: record the user turn, build a
// context-prefixed query, route it, record the assistant turn, and apply
// whichever fallback strategy the outcome triggers. It never returns an
// error; failures become structured apologies.
func (o *Orchestrator) Process(ctx context.Context, query string) *Result {
	ctx = domain.ContextWithSessionID(ctx, o.sessionID)
	ctx, span := tracer.StartSpan(ctx, "orchestrator.process")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("session_id", o.sessionID))

	o.appendMessage(SessionMessage{Role: domain.RoleUser, Content: query, Timestamp: time.Now()})
	o.mergeServices(query)

	meta := Metadata{SessionID: o.sessionID}

	// context_overflow: shrink hard before routing when the log has filled
	// its cap, then route against the recomputed summary.
	if len(o.messages) >= o.maxMsgs {
		o.messages = o.messages[len(o.messages)-overflowKeep:]
		meta.Strategy = strategyContextOverflow
		meta.ContextSummarized = true
		o.logger.Info("session context truncated", "session_id", o.sessionID, "kept", overflowKeep)
	}

	prefixed := o.prefixQuery(query)

	res, err := o.router.Process(ctx, prefixed, nil)
	if err != nil {
		// agent_failure: the router never sees its own collapse; we
		// convert it here and keep the session usable.
		tracer.RecordError(span, err)
		o.logger.Error("routing failed", "session_id", o.sessionID, "error", err)
		meta.Strategy = strategyAgentFailure
		meta.MessageCount = len(o.messages)
		content := apologyForFailure(query)
		o.appendMessage(SessionMessage{Role: domain.RoleAssistant, Content: content, AgentType: "error", Timestamp: time.Now()})
		return &Result{
			Content:   content,
			AgentType: "error",
			IntentAnalysis: Intent{
				Target:     "general",
				Confidence: domain.ConfidenceLow,
				Reasoning:  "routing failed; returned guidance instead",
			},
			Metadata: meta,
		}
	}

	// uncertain_intent: an uncertain no-match still gets a routing hint
	// when the raw query mentions the domain; otherwise the session is
	// marked as needing clarification. Neither path alters the
	// user-visible text.
	if meta.Strategy == "" && res.Intent.Target == "general" && res.Intent.Score < 0.4 {
		meta.Strategy = strategyUncertainIntent
		if o.hintAgent != "" && containsAWSKeyword(query) {
			meta.RoutingHint = o.hintAgent
		} else {
			meta.NeedsClarification = true
		}
	}

	o.mergeServices(res.Content)
	o.appendMessage(SessionMessage{
		Role:      domain.RoleAssistant,
		Content:   res.Content,
		AgentType: res.AgentType,
		Intent:    &res.Intent,
		Timestamp: time.Now(),
	})
	o.lastAgent = res.AgentType
	meta.MessageCount = len(o.messages)

	tracer.SetOK(span)
	return &Result{
		Content:        res.Content,
		AgentType:      res.AgentType,
		IntentAnalysis: res.Intent,
		Metadata:       meta,
	}
}

// appendMessage adds a message and enforces the session cap.
func (o *Orchestrator) appendMessage(m SessionMessage) {
	o.messages = append(o.messages, m)
	if len(o.messages) > o.maxMsgs {
		o.messages = o.messages[len(o.messages)-o.maxMsgs:]
	}
}

// mergeServices unions service names found in text into the session set.
func (o *Orchestrator) mergeServices(text string) {
	arch := usecase.ExtractArchitecture(text)
	for _, svc := range arch.Services {
		o.services[svc] = true
	}
}

// prefixQuery prepends a compact context digest to the query: the last few
// turns, the services under discussion, and the last agent used.
func (o *Orchestrator) prefixQuery(query string) string {
	// Everything before the turn just appended for this query.
	prior := o.messages[:len(o.messages)-1]
	if len(prior) == 0 {
		return query
	}

	var parts []string

	recent := prior
	if len(recent) > o.digest {
		recent = recent[len(recent)-o.digest:]
	}
	var turns []string
	for _, m := range recent {
		turns = append(turns, fmt.Sprintf("%s: %s", m.Role, truncate(m.Content, 100)))
	}
	parts = append(parts, "recent: "+strings.Join(turns, " | "))

	if len(o.services) > 0 {
		svcs := make([]string, 0, len(o.services))
		for svc := range o.services {
			svcs = append(svcs, svc)
		}
		// Stable digest: identical state must render identically.
		sort.Strings(svcs)
		parts = append(parts, "services: "+strings.Join(svcs, ","))
	}
	if o.lastAgent != "" {
		parts = append(parts, "last_agent: "+o.lastAgent)
	}

	return fmt.Sprintf("[CONTEXT: %s]\n\nUser Query: %s", strings.Join(parts, "; "), query)
}

// Status returns a read-only health snapshot.
func (o *Orchestrator) Status() Status {
	return Status{
		RouterAvailable:  o.router != nil,
		AgentsRegistered: len(o.registry.Status()),
		MessageCount:     len(o.messages),
		LastAgentUsed:    o.lastAgent,
		Agents:           o.registry.Status(),
	}
}

// Reset discards the session context. This is the only way the session's
// history is cleared short of dropping the orchestrator.
func (o *Orchestrator) Reset() {
	o.messages = nil
	o.services = make(map[string]bool)
	o.lastAgent = ""
	o.logger.Info("session reset", "session_id", o.sessionID)
}

// Messages returns the current session log.
func (o *Orchestrator) Messages() []SessionMessage {
	return o.messages
}

func containsAWSKeyword(query string) bool {
	lowered := strings.ToLower(query)
	for _, kw := range awsKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func apologyForFailure(query string) string {
	base := "I'm sorry, something went wrong while handling your request.\n\nWhat you can do:\n" +
		"- Try the query again in a moment\n" +
		"- Rephrase with specific AWS services and instance types\n"
	if containsAWSKeyword(query) {
		base += "- Ask for a knowledge-base estimate if live pricing keeps failing\n"
	}
	return strings.TrimRight(base, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
