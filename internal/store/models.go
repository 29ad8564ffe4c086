package store

import "time"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionAudit struct {
	ID           string     `json:"id"`
	TopicID      string     `json:"topic_id"`
	Status       string     `json:"status"`
	FinalPhase   string     `json:"final_phase,omitempty"`
	EndReason    string     `json:"end_reason,omitempty"`
	MessageCount int        `json:"message_count"`
	CallCount    int        `json:"call_count"`
	CostUSD      float64    `json:"cost_usd"`
	HighestBid   int64      `json:"highest_bid"`
	ReportID     string     `json:"report_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

type EventAudit struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Actor     string    `json:"actor,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LedgerEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	EntryType string    `json:"entry_type"`
	RefType   string    `json:"ref_type"`
	RefID     string    `json:"ref_id"`
	CreatedAt time.Time `json:"created_at"`
}
