package auction

import "idea-auction/internal/aigen"

// Sink receives every event a session emits, in emission order. The ws hub
// implements it; tests use NopSink.
type Sink interface {
	Publish(sessionID string, event any)
	PublishExcept(sessionID string, event any, excludeConn string)
}

type NopSink struct{}

func (NopSink) Publish(string, any)               {}
func (NopSink) PublishExcept(string, any, string) {}

type PhaseChanged struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id"`
	Phase           string `json:"phase"`
	TimeRemainingMS int64  `json:"time_remaining_ms"`
	StartedAt       int64  `json:"started_at"`
}

type SpeechEvent struct {
	Type string `json:"type"`
	aigen.Message
}

type BidPlaced struct {
	Type       string `json:"type"`
	HighestBid int64  `json:"highest_bid"`
	aigen.Message
}

type CostUpdate struct {
	Type         string  `json:"type"`
	SessionID    string  `json:"session_id"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	CallCount    int     `json:"call_count"`
	AvgCostUSD   float64 `json:"avg_cost_usd"`
}

type TimeExtended struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	ExtensionSeconds int    `json:"extension_seconds"`
	NewRemainingMS   int64  `json:"new_remaining_ms"`
	Reason           string `json:"reason"`
}

type UserSupplement struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Content   string `json:"content"`
}

type SessionEnded struct {
	Type         string  `json:"type"`
	SessionID    string  `json:"session_id"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	CallCount    int     `json:"call_count"`
	MessageCount int     `json:"message_count"`
	DurationMS   int64   `json:"duration_ms"`
	FinalPhase   string  `json:"final_phase"`
	Reason       string  `json:"reason"`
	HighestBid   int64   `json:"highest_bid"`
	ReportID     string  `json:"report_id"`
}
