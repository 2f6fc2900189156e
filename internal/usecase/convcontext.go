package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"costcompass/internal/domain"
)

const (
	defaultMaxTurns   = 10
	defaultTokenCap   = 8000
	defaultKeepRecent = 2
	maxScenarios      = 5
	queryLabelMax     = 80
)

// Turn is one query/response exchange with its derived metadata.
type Turn struct {
	Query         string
	Response      string
	QueryType     domain.QueryType
	Costs         *domain.CostEstimate
	AddedServices []string
	Timestamp     time.Time
	IsSummary     bool // synthetic turn produced by summarization
}

// Scenario is one comparison/what-if exchange kept for grounding follow-ups.
type Scenario struct {
	Query        string
	Summary      string
	Costs        *domain.CostEstimate
	Architecture domain.Architecture // snapshot at the time of the turn
}

// ConversationContext is the memory of a specialized agent: a bounded turn
// log plus derived architecture and cost state. Agents are registry
// singletons shared by every session, so all methods are safe for
// concurrent use.
type ConversationContext struct {
	maxTurns   int
	tokenCap   int
	keepRecent int
	counter    *TokenCounter

	mu           sync.Mutex
	turns        []Turn
	architecture domain.Architecture
	baseline     *domain.CostEstimate
	scenarios    []Scenario
}

// NewConversationContext creates a context with the given bounds. Zero
// values fall back to the defaults (10 turns, 8000 tokens, keep 2).
func NewConversationContext(maxTurns, tokenCap, keepRecent int, counter *TokenCounter) *ConversationContext {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	if tokenCap <= 0 {
		tokenCap = defaultTokenCap
	}
	if keepRecent <= 0 {
		keepRecent = defaultKeepRecent
	}
	if counter == nil {
		counter = NewHeuristicTokenCounter()
	}
	return &ConversationContext{
		maxTurns:   maxTurns,
		tokenCap:   tokenCap,
		keepRecent: keepRecent,
		counter:    counter,
	}
}

// Record appends a turn, merges extracted architecture facts, overwrites
// the cost baseline when new figures appear, tracks scenario turns, and
// summarizes when the token budget is exceeded.
func (c *ConversationContext) Record(query, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	qt := ClassifyQuery(query)

	arch := ExtractArchitecture(query + " " + response)
	added := c.mergeArchitecture(arch)

	costs := ExtractCosts(response)
	if costs.Empty() {
		costs = nil
	} else {
		// Overwrite, never merge: the baseline reflects only the most
		// recent pricing turn.
		c.baseline = costs
	}

	c.turns = append(c.turns, Turn{
		Query:         query,
		Response:      response,
		QueryType:     qt,
		Costs:         costs,
		AddedServices: added,
		Timestamp:     time.Now(),
	})

	if IsComparisonQuery(query, qt) {
		c.scenarios = append(c.scenarios, Scenario{
			Query:        query,
			Summary:      truncate(response, 200),
			Costs:        costs,
			Architecture: c.architecture,
		})
		if len(c.scenarios) > maxScenarios {
			c.scenarios = c.scenarios[1:]
		}
	}

	if len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}

	if c.tokenEstimate() > c.tokenCap {
		c.summarize()
	}
}

// mergeArchitecture unions arch into the running architecture and returns
// the service names that were new this turn.
func (c *ConversationContext) mergeArchitecture(arch *domain.Architecture) []string {
	if arch.Empty() {
		return nil
	}

	var added []string
	c.architecture.Services, added = unionTracking(c.architecture.Services, arch.Services)
	c.architecture.InstanceTypes, _ = unionTracking(c.architecture.InstanceTypes, arch.InstanceTypes)
	c.architecture.Regions, _ = unionTracking(c.architecture.Regions, arch.Regions)
	if len(arch.UsagePatterns) > 0 {
		if c.architecture.UsagePatterns == nil {
			c.architecture.UsagePatterns = map[string]string{}
		}
		for k, v := range arch.UsagePatterns {
			c.architecture.UsagePatterns[k] = v
		}
	}
	c.architecture.UpdatedAt = arch.UpdatedAt
	return added
}

func unionTracking(existing, incoming []string) (merged, added []string) {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	merged = existing
	for _, s := range incoming {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
			added = append(added, s)
		}
	}
	return merged, added
}

func (c *ConversationContext) tokenEstimate() int {
	total := 0
	for _, t := range c.turns {
		total += c.counter.Count(t.Query) + c.counter.Count(t.Response)
	}
	return total
}

// summarize collapses all but the most recent turns into one synthetic
// summary turn. It never fires with keepRecent or fewer turns, and the
// result is at most keepRecent+1 logical entries.
func (c *ConversationContext) summarize() {
	if len(c.turns) <= c.keepRecent {
		return
	}

	older := c.turns[:len(c.turns)-c.keepRecent]
	recent := c.turns[len(c.turns)-c.keepRecent:]

	summary := Turn{
		Query:     "conversation summary",
		Response:  c.buildSummary(older),
		QueryType: domain.QueryGeneral,
		Timestamp: time.Now(),
		IsSummary: true,
	}

	c.turns = append([]Turn{summary}, recent...)
}

// buildSummary renders older turns into a compact digest: query labels per
// classification bucket, architecture deltas, and the cost progression.
func (c *ConversationContext) buildSummary(older []Turn) string {
	byType := map[domain.QueryType][]string{}
	var deltas []string
	var costChain []string

	for _, t := range older {
		if t.IsSummary {
			// Carry a previous digest forward rather than re-deriving it.
			byType[domain.QueryGeneral] = append(byType[domain.QueryGeneral], truncate(t.Response, queryLabelMax))
			continue
		}
		byType[t.QueryType] = append(byType[t.QueryType], truncate(t.Query, queryLabelMax))
		for _, svc := range t.AddedServices {
			deltas = append(deltas, "Added: "+svc)
		}
		if t.Costs != nil && t.Costs.MonthlyTotal > 0 {
			costChain = append(costChain, fmt.Sprintf("$%.2f/month", t.Costs.MonthlyTotal))
		}
	}

	var b strings.Builder
	for _, qt := range []domain.QueryType{
		domain.QueryComparison, domain.QueryOptimization, domain.QueryScenario,
		domain.QueryModification, domain.QueryPricing, domain.QueryGeneral,
	} {
		labels := byType[qt]
		if len(labels) == 0 {
			continue
		}
		if len(labels) > 3 {
			labels = labels[len(labels)-3:]
		}
		fmt.Fprintf(&b, "%s: %s\n", qt, strings.Join(labels, "; "))
	}
	if len(deltas) > 0 {
		b.WriteString("Architecture evolution: " + strings.Join(deltas, ", ") + "\n")
	}
	if len(costChain) > 0 {
		if len(costChain) > 3 {
			costChain = costChain[len(costChain)-3:]
		}
		b.WriteString("Cost progression: " + strings.Join(costChain, " -> ") + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Turns returns a copy of the current logical turn log.
func (c *ConversationContext) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

// RecentTurns returns up to n of the latest turns, oldest first.
func (c *ConversationContext) RecentTurns(n int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || len(c.turns) == 0 {
		return nil
	}
	if n > len(c.turns) {
		n = len(c.turns)
	}
	return append([]Turn(nil), c.turns[len(c.turns)-n:]...)
}

// Architecture returns the cumulative architecture under discussion.
func (c *ConversationContext) Architecture() domain.Architecture {
	c.mu.Lock()
	defer c.mu.Unlock()

	arch := c.architecture
	arch.Services = append([]string(nil), c.architecture.Services...)
	arch.InstanceTypes = append([]string(nil), c.architecture.InstanceTypes...)
	arch.Regions = append([]string(nil), c.architecture.Regions...)
	if len(c.architecture.UsagePatterns) > 0 {
		arch.UsagePatterns = make(map[string]string, len(c.architecture.UsagePatterns))
		for k, v := range c.architecture.UsagePatterns {
			arch.UsagePatterns[k] = v
		}
	}
	return arch
}

// Baseline returns the last extracted cost baseline, or nil.
func (c *ConversationContext) Baseline() *domain.CostEstimate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseline
}

// Scenarios returns a copy of the tracked comparison/what-if history.
func (c *ConversationContext) Scenarios() []Scenario {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Scenario(nil), c.scenarios...)
}

// Len returns the number of logical turns.
func (c *ConversationContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset clears all turns and derived state. This is the only way context
// is discarded short of dropping the instance.
func (c *ConversationContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.architecture = domain.Architecture{}
	c.baseline = nil
	c.scenarios = nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
