package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Bridge.Execute", ErrToolNotFound, "tool 'get_aws_pricing'")
	want := "Bridge.Execute: tool 'get_aws_pricing': tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("PricingAgent.Process", ErrMaxIterations, "")
	want := "PricingAgent.Process: agent reached max iterations"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Bridge.Execute", ErrMCPTransport, "connection reset")
	if !errors.Is(err, ErrMCPTransport) {
		t.Error("errors.Is should match ErrMCPTransport")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("LLM.Chat", ErrProviderError, "bedrock")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "LLM.Chat" {
		t.Errorf("Op = %q, want %q", de.Op, "LLM.Chat")
	}
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(ErrToolNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeNoAgentMatched, ErrorCodeOf(ErrNoAgentMatched))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("Bridge.Execute", ErrToolNotFound, "tool 'foo'")
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrContextOverflow)
	assert.Equal(t, CodeContextOverflow, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_DerivedBeatsCategory(t *testing.T) {
	// ErrAgentNotFound wraps ErrNotFound; the specific code must win.
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(ErrAgentNotFound))
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(fmt.Errorf("lookup: %w", ErrAgentNotFound)))
	assert.Equal(t, CodeNotFound, ErrorCodeOf(ErrNotFound))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestDomainError_Code(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrAgentDisabled, "pricing")
	assert.Equal(t, CodeAgentDisabled, err.Code())
}

func TestDomainError_CodeUnknownSentinel(t *testing.T) {
	err := NewDomainError("Op", fmt.Errorf("custom"), "detail")
	assert.Equal(t, CodeUnknown, err.Code())
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
	// Every sentinel must also be reachable through chain matching.
	for sentinel := range errorCodeMap {
		assert.NotEqual(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("wrap: %w", sentinel)),
			"sentinel %v missing from precedence order", sentinel)
	}
}

// --- WrapOp tests ---

func TestWrapOp_Nil(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))
}

func TestWrapOp_Format(t *testing.T) {
	err := WrapOp("Registry.FindBest", ErrNoAgentMatched)
	assert.Equal(t, "Registry.FindBest: no agent matched query", err.Error())
}

func TestWrapOp_PreservesIs(t *testing.T) {
	err := WrapOp("Registry.FindBest", ErrNoAgentMatched)
	assert.True(t, errors.Is(err, ErrNoAgentMatched))
}

func TestWrapOp_Chain(t *testing.T) {
	inner := WrapOp("inner", ErrToolFailure)
	outer := WrapOp("outer", inner)
	assert.Equal(t, "outer: inner: tool execution failed", outer.Error())
	assert.True(t, errors.Is(outer, ErrToolFailure))
}

// --- IsRetryableError tests ---

func TestIsRetryableError_RateLimit(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
}

func TestIsRetryableError_ContextOverflow(t *testing.T) {
	assert.True(t, IsRetryableError(ErrContextOverflow))
}

func TestIsRetryableError_Wrapped(t *testing.T) {
	err := fmt.Errorf("llm call: %w", ErrRateLimit)
	assert.True(t, IsRetryableError(err))
}

func TestIsRetryableError_NotRetryable(t *testing.T) {
	assert.False(t, IsRetryableError(ErrToolNotFound))
	assert.False(t, IsRetryableError(fmt.Errorf("random error")))
}

func TestIsRetryableError_Nil(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
}
