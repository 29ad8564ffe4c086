package aigen

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"idea-auction/internal/persona"
	"idea-auction/internal/store"
)

// Message is one unit of broadcast content produced by the dispatcher.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	PersonaID   string    `json:"persona_id,omitempty"`
	PersonaName string    `json:"persona_name,omitempty"`
	Phase       string    `json:"phase"`
	Content     string    `json:"content"`
	Emotion     string    `json:"emotion"`
	Bid         int64     `json:"bid,omitempty"`
	HasBid      bool      `json:"has_bid"`
	Generated   bool      `json:"generated"`
	Backend     string    `json:"backend,omitempty"`
	Tokens      int       `json:"tokens"`
	CostUSD     float64   `json:"cost_usd"`
	Timestamp   time.Time `json:"timestamp"`
}

// Request carries the session view the dispatcher needs; it deliberately
// avoids a dependency on the session type itself.
type Request struct {
	SessionID    string
	TopicContent string
	Phase        string
	PhaseStart   bool
	History      []string
	Round        int
}

type Dispatcher struct {
	backends      map[string]Backend
	ratesPer1KUSD map[string]float64
	historyWindow int
	callTimeout   time.Duration
	maxTokens     int
}

type DispatcherConfig struct {
	HistoryWindow int
	CallTimeout   time.Duration
	MaxTokens     int
	RatesPer1KUSD map[string]float64
}

func NewDispatcher(cfg DispatcherConfig, backends ...Backend) *Dispatcher {
	d := &Dispatcher{
		backends:      make(map[string]Backend, len(backends)),
		ratesPer1KUSD: cfg.RatesPer1KUSD,
		historyWindow: cfg.HistoryWindow,
		callTimeout:   cfg.CallTimeout,
		maxTokens:     cfg.MaxTokens,
	}
	if d.historyWindow <= 0 {
		d.historyWindow = 8
	}
	if d.callTimeout <= 0 {
		d.callTimeout = 20 * time.Second
	}
	if d.maxTokens <= 0 {
		d.maxTokens = 200
	}
	for _, b := range backends {
		d.backends[b.Name()] = b
	}
	return d
}

// Generate always returns a usable message: backend failures are logged and
// recovered locally with a template line tagged Generated=false.
func (d *Dispatcher) Generate(ctx context.Context, req Request, p persona.Persona) Message {
	msg := Message{
		ID:          store.NewID(),
		SessionID:   req.SessionID,
		PersonaID:   p.ID,
		PersonaName: p.Name,
		Phase:       req.Phase,
		Timestamp:   time.Now(),
	}

	backend := d.backends[p.Backend]
	if backend == nil {
		log.Warn().Str("persona", p.ID).Str("backend", p.Backend).Msg("no backend configured, using fallback")
		return d.fallback(msg, p, req)
	}

	prompt := buildPrompt(p, req.TopicContent, req.Phase, req.History, req.PhaseStart, d.historyWindow)
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	text, usage, err := backend.Generate(callCtx, prompt, GenOptions{MaxTokens: d.maxTokens, Temperature: 0.8})
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", req.SessionID).
			Str("persona", p.ID).
			Str("backend", p.Backend).
			Msg("generation failed, using fallback")
		return d.fallback(msg, p, req)
	}

	msg.Content = text
	msg.Generated = true
	msg.Backend = p.Backend
	msg.Tokens = usage.Total()
	msg.CostUSD = d.cost(p.Backend, usage)
	msg.Emotion = ClassifyEmotion(text)
	if bid, ok := ParseBid(text); ok {
		msg.Bid = bid
		msg.HasBid = true
	}
	return msg
}

// Fallback returns the template line for req without contacting any
// backend. Callers use it to fill a slot whose real generation cannot be
// awaited.
func (d *Dispatcher) Fallback(req Request, p persona.Persona) Message {
	msg := Message{
		ID:          store.NewID(),
		SessionID:   req.SessionID,
		PersonaID:   p.ID,
		PersonaName: p.Name,
		Phase:       req.Phase,
		Timestamp:   time.Now(),
	}
	return d.fallback(msg, p, req)
}

func (d *Dispatcher) fallback(msg Message, p persona.Persona, req Request) Message {
	msg.Content = fallbackLine(p, req.Phase, req.Round)
	msg.Generated = false
	msg.Emotion = ClassifyEmotion(msg.Content)
	return msg
}

func (d *Dispatcher) cost(backend string, usage Usage) float64 {
	rate := d.ratesPer1KUSD[backend]
	return float64(usage.Total()) / 1000 * rate
}
