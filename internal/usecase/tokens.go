package usecase

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token usage for context-budget decisions.
// When a tokenizer encoding is available it is used; otherwise the
// chars/4 heuristic applies. The heuristic is deliberately coarse: budget
// decisions only need the right order of magnitude.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter backed by the cl100k_base encoding.
// An encoding load failure is not fatal; the counter falls back to the
// character heuristic.
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoding: enc}
}

// NewHeuristicTokenCounter builds a counter that always uses chars/4.
func NewHeuristicTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count estimates the token count of text.
func (t *TokenCounter) Count(text string) int {
	if t.encoding != nil {
		return len(t.encoding.Encode(text, nil, nil))
	}
	return len(text) / 4
}
