package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"idea-auction/internal/aigen"
	"idea-auction/internal/config"
	"idea-auction/internal/persona"
	"idea-auction/internal/store"
)

// Params are the per-session timing knobs. Separated from config so tests
// can run sessions on millisecond budgets.
type Params struct {
	Budgets          [phaseCount]time.Duration
	DialogueInterval time.Duration
	ExtensionSeconds int
	HistoryWindow    int
	CostUpdateEvery  int
	GuessReward      int64
}

func ParamsFromConfig(cfg config.AuctionConfig) Params {
	return Params{
		Budgets:          cfg.PhaseBudgets(),
		DialogueInterval: cfg.DialogueInterval(),
		ExtensionSeconds: cfg.ExtensionSeconds,
		HistoryWindow:    cfg.HistoryWindow,
		CostUpdateEvery:  cfg.CostUpdateEvery,
		GuessReward:      cfg.GuessReward,
	}
}

type Snapshot struct {
	SessionID       string          `json:"session_id"`
	TopicID         string          `json:"topic_id"`
	TopicContent    string          `json:"topic_content"`
	Phase           string          `json:"phase"`
	TimeRemainingMS int64           `json:"time_remaining_ms"`
	ElapsedMS       int64           `json:"elapsed_ms"`
	HighestBid      int64           `json:"highest_bid"`
	HighestBidder   string          `json:"highest_bidder,omitempty"`
	MessageCount    int             `json:"message_count"`
	TotalCostUSD    float64         `json:"total_cost_usd"`
	RecentMessages  []aigen.Message `json:"recent_messages"`
}

type Summary struct {
	SessionID     string  `json:"session_id"`
	TopicID       string  `json:"topic_id"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	CallCount     int     `json:"call_count"`
	MessageCount  int     `json:"message_count"`
	DurationMS    int64   `json:"duration_ms"`
	FinalPhase    string  `json:"final_phase"`
	Reason        string  `json:"reason"`
	HighestBid    int64   `json:"highest_bid"`
	HighestBidder string  `json:"highest_bidder,omitempty"`
	WinnerUserID  string  `json:"winner_user_id,omitempty"`
	WinnerGuess   int64   `json:"winner_guess,omitempty"`
	ReportID      string  `json:"report_id"`
}

// priceGuess is a viewer's latest paid prediction of the closing bid.
type priceGuess struct {
	Price       int64
	Confidence  float64
	SubmittedAt time.Time
}

// Session is one live auction over one topic. A single loop goroutine owns
// phase progression and the message log; everything else posts commands to
// it, which is what keeps event order identical for every viewer.
type Session struct {
	ID           string
	TopicID      string
	TopicContent string

	params     Params
	dispatcher *aigen.Dispatcher
	catalog    *persona.Catalog
	sink       Sink
	st         *store.Store
	onEnd      func(*Session, Summary)

	cmdCh  chan func()
	endCh  chan struct{}
	doneCh chan struct{}

	// loop-goroutine only
	rotation    int
	genInFlight bool

	mu             sync.Mutex
	phase          Phase
	startedAt      time.Time
	phaseStartedAt time.Time
	deadlines      [phaseCount]time.Time
	extended       [phaseCount]bool
	messages       []aigen.Message
	phaseMessages  int
	bids           map[string]int64
	guesses        map[string]priceGuess
	highestBid     int64
	highestBidder  string
	costUSD        float64
	callCount      int
	ending         bool
	endReason      string
	lastActivity   time.Time
}

func newSession(topicID, content string, params Params, dispatcher *aigen.Dispatcher, catalog *persona.Catalog, sink Sink, st *store.Store, onEnd func(*Session, Summary)) *Session {
	now := time.Now()
	s := &Session{
		ID:           store.NewID(),
		TopicID:      topicID,
		TopicContent: content,
		params:       params,
		dispatcher:   dispatcher,
		catalog:      catalog,
		sink:         sink,
		st:           st,
		onEnd:        onEnd,
		cmdCh:        make(chan func(), 64),
		endCh:        make(chan struct{}),
		doneCh:       make(chan struct{}),
		bids:         map[string]int64{},
		guesses:      map[string]priceGuess{},
		startedAt:    now,
		lastActivity: now,
	}
	// The whole deadline schedule is fixed at creation time so phase
	// boundaries stay deterministic relative to session start.
	cum := now
	for i, budget := range params.Budgets {
		cum = cum.Add(budget)
		s.deadlines[i] = cum
	}
	s.phaseStartedAt = now
	return s
}

func (s *Session) start() {
	if s.st != nil {
		go func() {
			if err := s.st.InsertSessionAudit(context.Background(), s.ID, s.TopicID); err != nil {
				log.Warn().Err(err).Str("session_id", s.ID).Msg("session audit write failed")
			}
		}()
	}
	go s.run()
}

func (s *Session) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.params.DialogueInterval)
	defer ticker.Stop()

	s.emitPhaseChanged()
	s.maybeGenerate(true)

	for {
		select {
		case <-s.endCh:
			s.finish()
			return
		default:
		}

		s.mu.Lock()
		deadline := s.deadlines[s.phase]
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-timer.C:
			if s.CurrentPhase() == PhaseResult {
				s.End("completed")
			} else {
				s.advancePhase()
			}
		case <-ticker.C:
			s.maybeGenerate(false)
		case cmd := <-s.cmdCh:
			cmd()
		case <-s.endCh:
			timer.Stop()
			s.finish()
			return
		}
		timer.Stop()
	}
}

// End is safe to call from any goroutine and idempotent: the first caller
// wins, later calls (a reaper racing natural completion) are no-ops.
func (s *Session) End(reason string) {
	s.mu.Lock()
	if s.ending {
		s.mu.Unlock()
		return
	}
	s.ending = true
	s.endReason = reason
	s.mu.Unlock()
	close(s.endCh)
}

func (s *Session) finish() {
	s.mu.Lock()
	winnerID, winnerGuess := s.settleGuessesLocked()
	summary := Summary{
		SessionID:     s.ID,
		TopicID:       s.TopicID,
		TotalCostUSD:  s.costUSD,
		CallCount:     s.callCount,
		MessageCount:  len(s.messages),
		DurationMS:    time.Since(s.startedAt).Milliseconds(),
		FinalPhase:    s.phase.String(),
		Reason:        s.endReason,
		HighestBid:    s.highestBid,
		HighestBidder: s.highestBidder,
		WinnerUserID:  winnerID,
		WinnerGuess:   winnerGuess,
		ReportID:      "report_" + store.NewID(),
	}
	s.mu.Unlock()

	s.sink.Publish(s.ID, SessionEnded{
		Type:         "session.ended",
		SessionID:    summary.SessionID,
		TotalCostUSD: summary.TotalCostUSD,
		CallCount:    summary.CallCount,
		MessageCount: summary.MessageCount,
		DurationMS:   summary.DurationMS,
		FinalPhase:   summary.FinalPhase,
		Reason:       summary.Reason,
		HighestBid:   summary.HighestBid,
		ReportID:     summary.ReportID,
	})
	metricSessionsEnded.Add(1)
	log.Info().
		Str("session_id", s.ID).
		Str("topic_id", s.TopicID).
		Str("reason", summary.Reason).
		Int("messages", summary.MessageCount).
		Float64("cost_usd", summary.TotalCostUSD).
		Int64("highest_bid", summary.HighestBid).
		Msg("session_end")

	if s.st != nil {
		go func() {
			err := s.st.MarkSessionEnded(context.Background(), store.SessionAudit{
				ID:           summary.SessionID,
				FinalPhase:   summary.FinalPhase,
				EndReason:    summary.Reason,
				MessageCount: summary.MessageCount,
				CallCount:    summary.CallCount,
				CostUSD:      summary.TotalCostUSD,
				HighestBid:   summary.HighestBid,
				ReportID:     summary.ReportID,
			})
			if err != nil {
				log.Warn().Err(err).Str("session_id", summary.SessionID).Msg("session end audit failed")
			}
		}()
	}
	if s.onEnd != nil {
		s.onEnd(s, summary)
	}
}

func (s *Session) advancePhase() {
	s.mu.Lock()
	if s.ending || s.phase >= PhaseResult {
		s.mu.Unlock()
		return
	}
	s.phase++
	s.phaseStartedAt = time.Now()
	s.lastActivity = s.phaseStartedAt
	s.phaseMessages = 0
	s.mu.Unlock()

	s.emitPhaseChanged()
	s.maybeGenerate(true)
}

func (s *Session) emitPhaseChanged() {
	s.mu.Lock()
	ev := PhaseChanged{
		Type:            "phase.changed",
		SessionID:       s.ID,
		Phase:           s.phase.String(),
		TimeRemainingMS: time.Until(s.deadlines[s.phase]).Milliseconds(),
		StartedAt:       s.phaseStartedAt.UnixMilli(),
	}
	s.mu.Unlock()
	s.sink.Publish(s.ID, ev)
	s.audit("phase.changed", "", ev)
}

// maybeGenerate kicks off one dialogue generation. The backend call runs
// off the loop goroutine so a hung provider never stalls the phase clock;
// the result re-joins through the command channel and is dropped if the
// session ended meanwhile. When a call is still in flight and the current
// phase has yet to say anything, the template line is substituted on the
// spot, so a slow backend can never leave a phase silent.
func (s *Session) maybeGenerate(phaseStart bool) {
	s.mu.Lock()
	if s.ending {
		s.mu.Unlock()
		return
	}
	quiet := s.phaseMessages == 0
	req := aigen.Request{
		SessionID:    s.ID,
		TopicContent: s.TopicContent,
		Phase:        s.phase.String(),
		PhaseStart:   phaseStart,
		History:      s.historyLinesLocked(),
		Round:        len(s.messages),
	}
	s.mu.Unlock()

	speakers := s.catalog.All()
	p := speakers[s.rotation%len(speakers)]

	if s.genInFlight {
		if quiet {
			s.rotation++
			s.applyMessage(s.dispatcher.Fallback(req, p))
		}
		return
	}
	s.rotation++
	s.genInFlight = true

	go func() {
		msg := s.dispatcher.Generate(context.Background(), req, p)
		s.post(func() {
			s.genInFlight = false
			s.applyMessage(msg)
		})
	}()
}

func (s *Session) applyMessage(msg aigen.Message) {
	s.mu.Lock()
	if s.ending {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.phaseMessages++
	s.lastActivity = time.Now()

	// Every parsed bid during the bidding phase becomes that persona's
	// latest; the highest is derived from the map, not gated by it.
	bidAccepted := msg.HasBid && s.phase == PhaseBidding
	if bidAccepted {
		s.bids[msg.PersonaID] = msg.Bid
		s.recomputeHighestLocked()
	}
	if msg.Generated {
		s.costUSD += msg.CostUSD
		s.callCount++
	}
	callCount := s.callCount
	costUSD := s.costUSD
	highest := s.highestBid
	s.mu.Unlock()

	metricMessagesTotal.Add(1)
	if !msg.Generated {
		metricFallbackTotal.Add(1)
	}
	if bidAccepted {
		s.sink.Publish(s.ID, BidPlaced{Type: "bid.placed", HighestBid: highest, Message: msg})
		s.audit("bid.placed", msg.PersonaID, msg)
	} else {
		s.sink.Publish(s.ID, SpeechEvent{Type: "persona.speech", Message: msg})
	}
	if msg.Generated && s.params.CostUpdateEvery > 0 && callCount%s.params.CostUpdateEvery == 0 {
		s.sink.Publish(s.ID, CostUpdate{
			Type:         "ai.cost.update",
			SessionID:    s.ID,
			TotalCostUSD: costUSD,
			CallCount:    callCount,
			AvgCostUSD:   costUSD / float64(callCount),
		})
	}
}

func (s *Session) recomputeHighestLocked() {
	var top int64
	var bidder string
	for id, amount := range s.bids {
		if amount > top || (amount == top && id == s.highestBidder) {
			top = amount
			bidder = id
		}
	}
	s.highestBid = top
	s.highestBidder = bidder
}

// RequestExtension grants at most one extension per phase instance; a second
// request within the same phase is a silent no-op.
func (s *Session) RequestExtension(seconds int, reason string) {
	if seconds <= 0 {
		seconds = s.params.ExtensionSeconds
	}
	delta := time.Duration(seconds) * time.Second
	s.post(func() {
		s.mu.Lock()
		if s.ending || s.extended[s.phase] {
			s.mu.Unlock()
			return
		}
		s.extended[s.phase] = true
		for i := int(s.phase); i < phaseCount; i++ {
			s.deadlines[i] = s.deadlines[i].Add(delta)
		}
		s.lastActivity = time.Now()
		ev := TimeExtended{
			Type:             "time_extended",
			SessionID:        s.ID,
			ExtensionSeconds: seconds,
			NewRemainingMS:   time.Until(s.deadlines[s.phase]).Milliseconds(),
			Reason:           reason,
		}
		s.mu.Unlock()
		s.sink.Publish(s.ID, ev)
		s.audit("time_extended", "", ev)
	})
}

// Supplement injects viewer-provided context into the dialogue history and
// optionally triggers a phase extension.
func (s *Session) Supplement(userID, content string, triggerExtension bool) {
	s.post(func() {
		s.mu.Lock()
		if s.ending {
			s.mu.Unlock()
			return
		}
		s.messages = append(s.messages, aigen.Message{
			ID:        store.NewID(),
			SessionID: s.ID,
			Phase:     s.phase.String(),
			Content:   content,
			Emotion:   "neutral",
			Timestamp: time.Now(),
		})
		s.lastActivity = time.Now()
		s.mu.Unlock()
		s.sink.Publish(s.ID, UserSupplement{
			Type:      "user.supplement",
			SessionID: s.ID,
			UserID:    userID,
			Content:   content,
		})
	})
	if triggerExtension {
		s.RequestExtension(0, "user_interaction")
	}
}

// RecordGuess stores the viewer's latest price guess; the closest guess to
// the closing bid is rewarded when the session settles. The caller has
// already debited the stake.
func (s *Session) RecordGuess(userID string, price int64, confidence float64) {
	s.post(func() {
		s.mu.Lock()
		if s.ending {
			s.mu.Unlock()
			return
		}
		g := priceGuess{Price: price, Confidence: confidence, SubmittedAt: time.Now()}
		s.guesses[userID] = g
		s.lastActivity = g.SubmittedAt
		s.mu.Unlock()
		s.audit("guess.submitted", userID, map[string]any{
			"user_id":       userID,
			"guessed_price": price,
			"confidence":    confidence,
		})
	})
}

// settleGuessesLocked picks the guess closest to the closing bid; ties go
// to the earliest submission.
func (s *Session) settleGuessesLocked() (string, int64) {
	var winnerID string
	var winner priceGuess
	var best int64 = -1
	for userID, g := range s.guesses {
		diff := g.Price - s.highestBid
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < best || (diff == best && g.SubmittedAt.Before(winner.SubmittedAt)) {
			best = diff
			winnerID = userID
			winner = g
		}
	}
	return winnerID, winner.Price
}

// Touch records viewer activity so the idle reaper leaves the session alone.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Ending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := s.messages
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	out := make([]aigen.Message, len(recent))
	copy(out, recent)
	return Snapshot{
		SessionID:       s.ID,
		TopicID:         s.TopicID,
		TopicContent:    s.TopicContent,
		Phase:           s.phase.String(),
		TimeRemainingMS: time.Until(s.deadlines[s.phase]).Milliseconds(),
		ElapsedMS:       time.Since(s.startedAt).Milliseconds(),
		HighestBid:      s.highestBid,
		HighestBidder:   s.highestBidder,
		MessageCount:    len(s.messages),
		TotalCostUSD:    s.costUSD,
		RecentMessages:  out,
	}
}

func (s *Session) historyLinesLocked() []string {
	window := s.params.HistoryWindow
	msgs := s.messages
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		name := m.PersonaName
		if name == "" {
			name = "viewer"
		}
		out = append(out, fmt.Sprintf("%s: %s", name, m.Content))
	}
	return out
}

func (s *Session) post(fn func()) bool {
	select {
	case s.cmdCh <- fn:
		return true
	case <-s.doneCh:
		return false
	}
}

func (s *Session) audit(eventType, actor string, payload any) {
	if s.st == nil {
		return
	}
	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			return
		}
		if err := s.st.InsertEventAudit(context.Background(), s.ID, eventType, actor, body); err != nil {
			log.Debug().Err(err).Str("session_id", s.ID).Str("event", eventType).Msg("event audit failed")
		}
	}()
}
