package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"idea-auction/internal/auction"
	"idea-auction/internal/config"
	"idea-auction/internal/ledger"
	"idea-auction/internal/persona"
	"idea-auction/internal/store"
)

type Config struct {
	MaxInboundBytes  int64
	RatePerMinute    int
	HeartbeatSeconds int
	GuessCost        int64
}

func ConfigFromServer(cfg config.ServerConfig, guessCost int64) Config {
	return Config{
		MaxInboundBytes:  cfg.MaxInboundBytes,
		RatePerMinute:    cfg.RatePerMinute,
		HeartbeatSeconds: cfg.HeartbeatSeconds,
		GuessCost:        guessCost,
	}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	id        string
	key       string
	userID    string
	sessionID string
	limiter   *rate.Limiter
	lastSeen  atomic.Int64
}

func (c *client) shutdown() {
	safeClose(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *client) touch() {
	c.lastSeen.Store(time.Now().UnixMilli())
}

func (c *client) lastSeenUnixMilli() int64 {
	return c.lastSeen.Load()
}

// Server terminates viewer WebSocket connections and routes their messages
// to the session registry, the economy ledger, and the hub.
type Server struct {
	cfg      Config
	registry *auction.Registry
	hub      *Hub
	catalog  *persona.Catalog
	st       *store.Store
	ledger   *ledger.Ledger
	upgrader websocket.Upgrader
}

func NewServer(cfg Config, registry *auction.Registry, hub *Hub, catalog *persona.Catalog, st *store.Store, ld *ledger.Ledger) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		catalog:  catalog,
		st:       st,
		ledger:   ld,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.HandleWS(w, r)
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	id := store.NewID()
	c := &client{
		conn:    conn,
		send:    make(chan []byte, 32),
		id:      id,
		key:     id,
		limiter: rate.NewLimiter(rate.Limit(float64(s.cfg.RatePerMinute)/60.0), s.cfg.RatePerMinute),
	}
	c.touch()
	if s.cfg.MaxInboundBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxInboundBytes)
	}
	if err := s.hub.register(c); err != nil {
		msg, _ := json.Marshal(errorEvent(CodeResourceExhausted, "server is full"))
		_ = conn.WriteMessage(websocket.TextMessage, msg)
		_ = conn.Close()
		return
	}

	go s.writeLoop(c)
	s.sendEvent(c, Connected{
		Type:             "connected",
		ProtocolVersion:  ProtocolVersion,
		ConnectionID:     c.id,
		HeartbeatSeconds: s.cfg.HeartbeatSeconds,
	})
	s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	for msg := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (s *Server) readLoop(c *client) {
	defer s.disconnect(c)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()
		if !c.limiter.Allow() {
			metricRateLimited.Add(1)
			s.sendEvent(c, errorEvent(CodeRateLimited, "message budget exceeded, slow down"))
			continue
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &base); err != nil || base.Type == "" {
			s.sendEvent(c, errorEvent(CodeMalformedMessage, "message is not valid json"))
			continue
		}
		switch base.Type {
		case "join_session":
			var join JoinMessage
			if err := json.Unmarshal(msg, &join); err != nil {
				s.sendEvent(c, errorEvent(CodeMalformedMessage, "bad join_session payload"))
				continue
			}
			s.handleJoin(c, join)
		case "leave_session":
			s.handleLeave(c)
		case "submit_guess":
			var guess GuessMessage
			if err := json.Unmarshal(msg, &guess); err != nil || guess.GuessedPrice <= 0 {
				s.sendEvent(c, errorEvent(CodeMalformedMessage, "bad submit_guess payload"))
				continue
			}
			s.handleGuess(c, guess)
		case "support_agent":
			var sup SupportMessage
			if err := json.Unmarshal(msg, &sup); err != nil || sup.AgentName == "" {
				s.sendEvent(c, errorEvent(CodeMalformedMessage, "bad support_agent payload"))
				continue
			}
			s.handleReaction(c, Reaction{
				Type:      "reaction",
				SessionID: sup.SessionID,
				AgentName: sup.AgentName,
				Kind:      "support",
			})
		case "react_to_dialogue":
			var react ReactMessage
			if err := json.Unmarshal(msg, &react); err != nil || react.Reaction == "" {
				s.sendEvent(c, errorEvent(CodeMalformedMessage, "bad react_to_dialogue payload"))
				continue
			}
			s.handleReaction(c, Reaction{
				Type:      "reaction",
				SessionID: react.SessionID,
				Reaction:  react.Reaction,
				AgentName: react.AgentName,
				Kind:      "react",
			})
		case "user_supplement":
			var sup SupplementMessage
			if err := json.Unmarshal(msg, &sup); err != nil || sup.Content == "" {
				s.sendEvent(c, errorEvent(CodeMalformedMessage, "bad user_supplement payload"))
				continue
			}
			s.handleSupplement(c, sup)
		case "extend_phase":
			var ext ExtendMessage
			if err := json.Unmarshal(msg, &ext); err != nil {
				s.sendEvent(c, errorEvent(CodeMalformedMessage, "bad extend_phase payload"))
				continue
			}
			s.handleExtend(c, ext)
		case "ping":
			s.sendEvent(c, Pong{Type: "pong"})
		default:
			s.sendEvent(c, errorEvent(CodeMalformedMessage, "unknown message type "+base.Type))
		}
	}
}

// handleJoin authenticates best-effort, resolves or creates the session,
// attaches the connection, and replies with a full snapshot so a late
// joiner is consistent without replaying history.
func (s *Server) handleJoin(c *client, join JoinMessage) {
	if join.Token != "" && s.st != nil {
		user, err := s.st.GetUserByToken(context.Background(), join.Token)
		if err == nil {
			c.userID = user.ID
			s.hub.rekey(c, user.ID)
		} else {
			// bad token degrades to anonymous rather than rejecting
			log.Debug().Str("connection_id", c.id).Msg("token rejected, joining anonymous")
		}
	}

	sess, ok := s.resolveSession(c, join)
	if !ok {
		return
	}
	count, err := s.hub.attach(c, sess.ID)
	if err != nil {
		s.sendEvent(c, errorEvent(CodeResourceExhausted, "session viewer cap reached"))
		return
	}
	sess.Touch()
	s.sendEvent(c, SessionJoined{Type: "session_joined", Snapshot: sess.Snapshot(), ViewerCount: count})
	s.hub.PublishExcept(sess.ID, ViewerCount{Type: "viewer_joined", SessionID: sess.ID, Count: count}, c.key)
	s.auditViewer(c, sess.ID, "join_session")
}

func (s *Server) resolveSession(c *client, join JoinMessage) (*auction.Session, bool) {
	if join.SessionID != "" {
		sess, ok := s.registry.Get(join.SessionID)
		if !ok || sess.Ending() {
			s.sendEvent(c, errorEvent(CodeSessionNotFound, "no live session "+join.SessionID))
			return nil, false
		}
		return sess, true
	}
	if join.TopicID == "" {
		s.sendEvent(c, errorEvent(CodeMalformedMessage, "join_session needs session_id or topic_id"))
		return nil, false
	}
	sess, err := s.registry.GetOrCreate(join.TopicID, join.TopicContent)
	if err != nil {
		s.sendEvent(c, errorEvent(CodeResourceExhausted, "session limit reached"))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleLeave(c *client) {
	sessionID, remaining, wasAttached := s.hub.detach(c)
	if !wasAttached {
		return
	}
	s.hub.Publish(sessionID, ViewerCount{Type: "viewer_left", SessionID: sessionID, Count: remaining})
	s.auditViewer(c, sessionID, "leave_session")
}

// handleGuess debits the price-guess stake before accepting. Insufficient
// balance rejects the guess without touching the session.
func (s *Server) handleGuess(c *client, guess GuessMessage) {
	if c.userID == "" || s.ledger == nil {
		s.sendEvent(c, errorEvent(CodeUnauthenticated, "guessing requires a signed-in user"))
		return
	}
	sess, ok := s.attachedSession(c, guess.SessionID)
	if !ok {
		return
	}
	balance, err := s.ledger.DebitGuess(context.Background(), c.userID, sess.ID, s.cfg.GuessCost)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			s.sendEvent(c, GuessResult{Type: "guess_result", Accepted: false, Error: CodeInsufficientBalance})
			return
		}
		log.Warn().Err(err).Str("user_id", c.userID).Msg("guess debit failed")
		s.sendEvent(c, GuessResult{Type: "guess_result", Accepted: false, Error: "internal"})
		return
	}
	sess.RecordGuess(c.userID, guess.GuessedPrice, guess.Confidence)
	s.sendEvent(c, GuessResult{Type: "guess_result", Accepted: true, Balance: balance})
	s.auditViewer(c, sess.ID, "submit_guess")
}

func (s *Server) handleReaction(c *client, ev Reaction) {
	if ev.AgentName != "" && s.catalog != nil {
		if _, ok := s.catalog.GetByName(ev.AgentName); !ok {
			s.sendEvent(c, errorEvent(CodeMalformedMessage, "unknown persona "+ev.AgentName))
			return
		}
	}
	sess, ok := s.attachedSession(c, ev.SessionID)
	if !ok {
		return
	}
	ev.SessionID = sess.ID
	ev.UserID = c.userID
	sess.Touch()
	// the sender knows what it sent, everyone else gets the echo
	s.hub.PublishExcept(sess.ID, ev, c.key)
	s.auditViewer(c, sess.ID, ev.Kind)
}

func (s *Server) handleSupplement(c *client, sup SupplementMessage) {
	sess, ok := s.attachedSession(c, sup.SessionID)
	if !ok {
		return
	}
	sess.Supplement(c.userID, sup.Content, sup.TriggerExtension)
	s.auditViewer(c, sess.ID, "user_supplement")
}

func (s *Server) handleExtend(c *client, ext ExtendMessage) {
	sess, ok := s.attachedSession(c, ext.SessionID)
	if !ok {
		return
	}
	reason := ext.Reason
	if reason == "" {
		reason = "user_interaction"
	}
	sess.RequestExtension(ext.ExtensionSeconds, reason)
	s.auditViewer(c, sess.ID, "extend_phase")
}

// attachedSession resolves the session a request targets, defaulting to the
// one the connection is attached to.
func (s *Server) attachedSession(c *client, sessionID string) (*auction.Session, bool) {
	if sessionID == "" {
		sessionID = s.hub.sessionOf(c)
	}
	if sessionID == "" {
		s.sendEvent(c, errorEvent(CodeSessionNotFound, "join a session first"))
		return nil, false
	}
	sess, ok := s.registry.Get(sessionID)
	if !ok || sess.Ending() {
		s.sendEvent(c, errorEvent(CodeSessionNotFound, "no live session "+sessionID))
		return nil, false
	}
	return sess, true
}

func (s *Server) disconnect(c *client) {
	sessionID, remaining, wasAttached := s.hub.unregister(c)
	if wasAttached {
		s.hub.Publish(sessionID, ViewerCount{Type: "viewer_left", SessionID: sessionID, Count: remaining})
	}
	c.shutdown()
}

// StartSweeper detaches connections that have gone silent for more than two
// heartbeat intervals. It runs on its own clock, independent of any session.
func (s *Server) StartSweeper(ctx context.Context) {
	interval := time.Duration(s.cfg.HeartbeatSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				cutoff := now.Add(-2 * interval).UnixMilli()
				for _, c := range s.hub.stale(cutoff) {
					log.Info().Str("connection_id", c.id).Msg("dropping silent connection")
					s.disconnect(c)
				}
			}
		}
	}()
}

// auditViewer records viewer behavior fire-and-forget; a failed write never
// affects the connection.
func (s *Server) auditViewer(c *client, sessionID, eventType string) {
	if s.st == nil {
		return
	}
	go func() {
		if err := s.st.InsertViewerEvent(context.Background(), c.id, c.userID, sessionID, eventType); err != nil {
			log.Debug().Err(err).Str("connection_id", c.id).Str("event", eventType).Msg("viewer event write failed")
		}
	}()
}

func (s *Server) sendEvent(c *client, ev any) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	safeSend(c.send, msg)
}

func safeClose(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

func safeSend(ch chan []byte, msg []byte) {
	defer func() {
		_ = recover()
	}()
	ch <- msg
}
