package usecase

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"costcompass/internal/domain"
)

// stubAgent is a minimal SpecializedAgent for registry tests.
type stubAgent struct {
	meta domain.AgentMetadata
}

func (s *stubAgent) Process(ctx context.Context, query string, history []domain.Message) *domain.AgentResponse {
	return &domain.AgentResponse{Status: domain.StatusSuccess, Response: "stub: " + query}
}

func (s *stubAgent) Capabilities() []domain.AgentCapability { return s.meta.Capabilities }
func (s *stubAgent) Metadata() domain.AgentMetadata         { return s.meta }

func stubFactory(meta domain.AgentMetadata) domain.AgentFactory {
	return func() (domain.SpecializedAgent, error) {
		return &stubAgent{meta: meta}, nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRegistry() *Registry {
	return NewRegistry(newTestMatcher(), testLogger())
}

func pricingMeta() domain.AgentMetadata {
	return domain.AgentMetadata{
		Name: "pricing",
		Capabilities: []domain.AgentCapability{{
			Name:                "cost_analysis",
			Keywords:            []string{"cost", "price", "estimate"},
			Phrases:             []string{"how much"},
			Priority:            8,
			ConfidenceThreshold: 0.3,
		}},
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate register error = %v, want ErrDuplicate", err)
	}
}

func TestGetMemoizes(t *testing.T) {
	r := newTestRegistry()
	builds := 0
	factory := func() (domain.SpecializedAgent, error) {
		builds++
		return &stubAgent{meta: pricingMeta()}, nil
	}
	if err := r.RegisterFactory("pricing", factory); err != nil {
		t.Fatal(err)
	}
	// One build happened at registration to harvest metadata.
	harvestBuilds := builds

	first := r.Get("pricing")
	second := r.Get("pricing")
	if first == nil || second == nil {
		t.Fatal("Get returned nil for a registered agent")
	}
	if first != second {
		t.Error("Get did not memoize the instance")
	}
	if builds != harvestBuilds+1 {
		t.Errorf("factory ran %d times after registration, want 1", builds-harvestBuilds)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	r := newTestRegistry()
	if got := r.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
}

func TestConstructionFailureIsNotFatal(t *testing.T) {
	r := newTestRegistry()
	factory := func() (domain.SpecializedAgent, error) {
		return nil, errors.New("boom")
	}
	if err := r.RegisterFactory("broken", factory); err != nil {
		t.Fatalf("registration must survive a metadata harvest failure, got %v", err)
	}
	if got := r.Get("broken"); got != nil {
		t.Errorf("Get(broken) = %v, want nil", got)
	}

	// A healthy agent registered alongside still routes.
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := r.FindBest("what does this cost", nil); !ok {
		t.Error("healthy agent should still be routable next to a broken one")
	}
}

func TestFindBestThresholdExclusion(t *testing.T) {
	r := newTestRegistry()
	meta := pricingMeta()
	meta.Capabilities[0].ConfidenceThreshold = 0.99
	if err := r.RegisterFactory("strict", stubFactory(meta)); err != nil {
		t.Fatal(err)
	}

	// "cost" alone scores 0.6 after the floor, below the 0.99 threshold.
	if id, _, ok := r.FindBest("the cost is high", nil); ok {
		t.Errorf("FindBest returned %q despite threshold exclusion", id)
	}
}

func TestFindBestTieBreakFirstRegistered(t *testing.T) {
	r := newTestRegistry()
	meta := pricingMeta()
	if err := r.RegisterFactory("first", stubFactory(meta)); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterFactory("second", stubFactory(meta)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		id, _, ok := r.FindBest("what does this cost", nil)
		if !ok {
			t.Fatal("FindBest found nothing")
		}
		if id != "first" {
			t.Fatalf("tie-break returned %q, want first-registered", id)
		}
	}
}

func TestFindBestExclude(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); err != nil {
		t.Fatal(err)
	}
	if id, _, ok := r.FindBest("what does this cost", map[string]bool{"pricing": true}); ok {
		t.Errorf("FindBest = %q, want excluded", id)
	}
}

func TestFindBestDisabled(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); err != nil {
		t.Fatal(err)
	}
	if err := r.Disable("pricing"); err != nil {
		t.Fatal(err)
	}
	if id, _, ok := r.FindBest("what does this cost", nil); ok {
		t.Errorf("FindBest = %q, want none while disabled", id)
	}

	if err := r.Enable("pricing"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := r.FindBest("what does this cost", nil); !ok {
		t.Error("FindBest should match again after Enable")
	}
}

func TestFindBestRoutesToSpecialist(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); err != nil {
		t.Fatal(err)
	}
	security := domain.AgentMetadata{
		Name: "security",
		Capabilities: []domain.AgentCapability{{
			Name:                "security_review",
			Keywords:            []string{"security"},
			Phrases:             []string{"security review"},
			Priority:            9,
			ConfidenceThreshold: 0.7,
		}},
	}
	if err := r.RegisterFactory("security", stubFactory(security)); err != nil {
		t.Fatal(err)
	}

	id, score, ok := r.FindBest("please do a security review of my setup", nil)
	if !ok {
		t.Fatal("FindBest found nothing")
	}
	if id != "security" {
		t.Errorf("FindBest = %q (score %v), want security", id, score)
	}
}

func TestStatusAndExport(t *testing.T) {
	r := newTestRegistry()
	if err := r.RegisterFactory("pricing", stubFactory(pricingMeta())); err != nil {
		t.Fatal(err)
	}

	statuses := r.Status()
	if len(statuses) != 1 {
		t.Fatalf("Status len = %d, want 1", len(statuses))
	}
	s := statuses[0]
	if s.ID != "pricing" || !s.Enabled || s.CapabilityCount != 1 || !s.MetadataHealthy {
		t.Errorf("Status = %+v", s)
	}
	if s.Instantiated {
		t.Error("agent should not be instantiated before first Get")
	}

	r.Get("pricing")
	if got := r.Status()[0]; !got.Instantiated {
		t.Error("agent should be instantiated after Get")
	}

	configs := r.ExportConfig()
	if len(configs) != 1 || configs[0].ID != "pricing" || configs[0].Metadata.Name != "pricing" {
		t.Errorf("ExportConfig = %+v", configs)
	}
}
