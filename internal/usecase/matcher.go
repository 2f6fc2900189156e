package usecase

import (
	"strings"

	"costcompass/internal/domain"
)

// ScoringConfig holds the tunable constants of the capability matcher.
// The defaults are empirically tuned; the algorithm shape (floor, clamp,
// max aggregation) is the contract, not the exact values.
type ScoringConfig struct {
	KeywordBase   float64 // awarded when at least one keyword matches
	KeywordSpan   float64 // added proportionally to the matched-keyword ratio
	PhrasePerHit  float64 // per matched phrase
	PhraseCap     float64 // phrase score ceiling
	PriorityPivot int     // priorities above this earn a bonus
	PriorityStep  float64 // bonus per priority point above the pivot
	PriorityScale float64 // divisor turning priority into a multiplier
	MatchFloor    float64 // minimum score when anything matched
}

// DefaultScoring returns the standard scoring constants.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		KeywordBase:   0.4,
		KeywordSpan:   0.4,
		PhrasePerHit:  0.5,
		PhraseCap:     0.9,
		PriorityPivot: 5,
		PriorityStep:  0.05,
		PriorityScale: 10,
		MatchFloor:    0.6,
	}
}

// CapabilityMatcher scores free-text queries against agent capabilities.
// It is pure and stateless: substring matching only, no embeddings.
type CapabilityMatcher struct {
	cfg ScoringConfig
}

// NewCapabilityMatcher creates a matcher with the given scoring constants.
func NewCapabilityMatcher(cfg ScoringConfig) *CapabilityMatcher {
	return &CapabilityMatcher{cfg: cfg}
}

// Score computes the confidence of a single capability for a query,
// clamped to [0, 1]. Zero means no keyword and no phrase matched.
func (m *CapabilityMatcher) Score(query string, c domain.AgentCapability) float64 {
	q := strings.ToLower(query)

	keywordHits := 0
	for _, kw := range c.Keywords {
		if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
			keywordHits++
		}
	}
	var keywordScore float64
	if keywordHits > 0 && len(c.Keywords) > 0 {
		ratio := float64(keywordHits) / float64(len(c.Keywords))
		if ratio > 1 {
			ratio = 1
		}
		keywordScore = m.cfg.KeywordBase + m.cfg.KeywordSpan*ratio
	}

	phraseHits := 0
	for _, ph := range c.Phrases {
		if ph != "" && strings.Contains(q, strings.ToLower(ph)) {
			phraseHits++
		}
	}
	var phraseScore float64
	if phraseHits > 0 {
		phraseScore = m.cfg.PhrasePerHit * float64(phraseHits)
		if phraseScore > m.cfg.PhraseCap {
			phraseScore = m.cfg.PhraseCap
		}
	}

	raw := keywordScore + phraseScore
	if raw <= 0 {
		return 0
	}

	bonus := float64(c.Priority-m.cfg.PriorityPivot) * m.cfg.PriorityStep
	if bonus < 0 {
		bonus = 0
	}
	score := (raw + bonus) * (float64(c.Priority) / m.cfg.PriorityScale)

	// Any match is worth at least the floor, so low-priority scaling cannot
	// starve out a genuine hit.
	if score < m.cfg.MatchFloor {
		score = m.cfg.MatchFloor
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Confidence returns an agent's overall confidence for a query: the maximum
// score across its capabilities. Max, not sum, so one strong specific match
// beats many weak ones.
func (m *CapabilityMatcher) Confidence(query string, caps []domain.AgentCapability) float64 {
	best := 0.0
	for _, c := range caps {
		if s := m.Score(query, c); s > best {
			best = s
		}
	}
	return best
}
