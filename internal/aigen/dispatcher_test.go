package aigen

import (
	"context"
	"strings"
	"testing"

	"idea-auction/internal/persona"
)

type stubBackend struct {
	name  string
	text  string
	usage Usage
	err   error
	calls int
	seen  string
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Generate(_ context.Context, prompt string, _ GenOptions) (string, Usage, error) {
	s.calls++
	s.seen = prompt
	return s.text, s.usage, s.err
}

func testPersona() persona.Persona {
	return persona.Persona{
		ID:          "market-skeptic",
		Name:        "Margaret Liu",
		Specialty:   "unit economics",
		Catchphrase: "Show me the repeat buyers.",
		Backend:     "openai",
	}
}

func TestGenerateSuccess(t *testing.T) {
	stub := &stubBackend{
		name:  "openai",
		text:  "This is an amazing market. bid: 120",
		usage: Usage{PromptTokens: 300, CompletionTokens: 100},
	}
	d := NewDispatcher(DispatcherConfig{RatesPer1KUSD: map[string]float64{"openai": 0.01}}, stub)

	msg := d.Generate(context.Background(), Request{
		SessionID:    "s1",
		TopicContent: "An app for trading sourdough starters",
		Phase:        "bidding",
	}, testPersona())

	if !msg.Generated {
		t.Fatal("Generated = false, want true")
	}
	if !msg.HasBid || msg.Bid != 120 {
		t.Fatalf("bid = (%d, %v), want (120, true)", msg.Bid, msg.HasBid)
	}
	if msg.Emotion != "excited" {
		t.Fatalf("emotion = %q, want excited", msg.Emotion)
	}
	if msg.Tokens != 400 {
		t.Fatalf("tokens = %d, want 400", msg.Tokens)
	}
	if msg.CostUSD != 0.004 {
		t.Fatalf("cost = %v, want 0.004", msg.CostUSD)
	}
	if msg.ID == "" || msg.PersonaID != "market-skeptic" {
		t.Fatalf("unexpected message identity: %+v", msg)
	}
}

func TestGenerateFallbackOnError(t *testing.T) {
	stub := &stubBackend{name: "openai", err: ErrBackendUnavailable}
	d := NewDispatcher(DispatcherConfig{}, stub)

	for _, phase := range []string{"warmup", "discussion", "bidding", "prediction", "result"} {
		msg := d.Generate(context.Background(), Request{SessionID: "s1", Phase: phase}, testPersona())
		if msg.Generated {
			t.Fatalf("phase %s: Generated = true, want fallback", phase)
		}
		if msg.Content == "" {
			t.Fatalf("phase %s: empty fallback content", phase)
		}
		if msg.CostUSD != 0 || msg.Tokens != 0 {
			t.Fatalf("phase %s: fallback must cost zero, got %v/%d", phase, msg.CostUSD, msg.Tokens)
		}
	}
	if stub.calls != 5 {
		t.Fatalf("backend calls = %d, want 5", stub.calls)
	}
}

func TestGenerateFallbackWhenBackendMissing(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	msg := d.Generate(context.Background(), Request{SessionID: "s1", Phase: "discussion"}, testPersona())
	if msg.Generated || msg.Content == "" {
		t.Fatalf("expected fallback message, got %+v", msg)
	}
}

func TestGenerateBoundsHistoryWindow(t *testing.T) {
	stub := &stubBackend{name: "openai", text: "fine"}
	d := NewDispatcher(DispatcherConfig{HistoryWindow: 2}, stub)

	history := []string{"one: a", "two: b", "three: c", "four: d"}
	d.Generate(context.Background(), Request{
		SessionID:    "s1",
		Phase:        "discussion",
		History:      history,
		TopicContent: "topic",
	}, testPersona())

	if strings.Contains(stub.seen, "one: a") || strings.Contains(stub.seen, "two: b") {
		t.Fatalf("prompt contains history outside the window:\n%s", stub.seen)
	}
	if !strings.Contains(stub.seen, "three: c") || !strings.Contains(stub.seen, "four: d") {
		t.Fatalf("prompt missing recent history:\n%s", stub.seen)
	}
}

func TestFallbackLineDeterministic(t *testing.T) {
	p := testPersona()
	a := fallbackLine(p, "prediction", 3)
	b := fallbackLine(p, "prediction", 3)
	if a != b {
		t.Fatalf("fallback not deterministic: %q vs %q", a, b)
	}
}
