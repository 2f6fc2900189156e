package main

import (
	"testing"

	"costcompass/internal/infra/config"
)

// The default routing hint must name an agent id that is actually
// registered, or the uncertain-intent strategy points at nothing.
func TestDefaultFallbackAgentMatchesRegisteredID(t *testing.T) {
	cfg := config.Defaults()
	if cfg.Routing.FallbackAgent != pricingAgentID {
		t.Errorf("Routing.FallbackAgent = %q, want %q", cfg.Routing.FallbackAgent, pricingAgentID)
	}
}
