package ws

import "idea-auction/internal/auction"

const ProtocolVersion = "1.0"

type JoinMessage struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id,omitempty"`
	TopicID      string `json:"topic_id,omitempty"`
	TopicContent string `json:"topic_content,omitempty"`
	Token        string `json:"token,omitempty"`
}

type LeaveMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type GuessMessage struct {
	Type         string  `json:"type"`
	SessionID    string  `json:"session_id"`
	GuessedPrice int64   `json:"guessed_price"`
	Confidence   float64 `json:"confidence"`
}

type SupportMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentName string `json:"agent_name"`
}

type ReactMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reaction  string `json:"reaction"`
	AgentName string `json:"agent_name,omitempty"`
}

type SupplementMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	Content          string `json:"content"`
	TriggerExtension bool   `json:"trigger_extension,omitempty"`
}

type ExtendMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	ExtensionSeconds int    `json:"extension_seconds"`
	Reason           string `json:"reason,omitempty"`
}

type Connected struct {
	Type             string `json:"type"`
	ProtocolVersion  string `json:"protocol_version"`
	ConnectionID     string `json:"connection_id"`
	HeartbeatSeconds int    `json:"heartbeat_seconds"`
}

type SessionJoined struct {
	Type        string           `json:"type"`
	Snapshot    auction.Snapshot `json:"snapshot"`
	ViewerCount int              `json:"viewer_count"`
}

type ViewerCount struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

type GuessResult struct {
	Type     string `json:"type"`
	Accepted bool   `json:"accepted"`
	Balance  int64  `json:"balance,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Reaction struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Reaction  string `json:"reaction,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Kind      string `json:"kind"`
}

type Pong struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes surfaced to a single connection. None of them affect the
// session or other viewers.
const (
	CodeRateLimited         = "rate_limited"
	CodeResourceExhausted   = "resource_exhausted"
	CodeSessionNotFound     = "session_not_found"
	CodeUnauthenticated     = "unauthenticated"
	CodeInsufficientBalance = "insufficient_balance"
	CodeMalformedMessage    = "malformed_message"
)

func errorEvent(code, message string) ErrorMessage {
	return ErrorMessage{Type: "error", Code: code, Message: message}
}
