package auction

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"idea-auction/internal/aigen"
	"idea-auction/internal/config"
	"idea-auction/internal/persona"
	"idea-auction/internal/store"
)

// Limits bound how many sessions the registry runs and how aggressively the
// reaper cleans up.
type Limits struct {
	MaxSessions      int
	IdleTimeout      time.Duration
	ReaperInterval   time.Duration
	TeardownGrace    time.Duration
	SummaryCacheSize int
}

func LimitsFromConfig(cfg config.AuctionConfig) Limits {
	return Limits{
		MaxSessions:      cfg.MaxSessions,
		IdleTimeout:      cfg.IdleTimeout(),
		ReaperInterval:   cfg.ReaperInterval(),
		TeardownGrace:    cfg.TeardownGrace(),
		SummaryCacheSize: cfg.SummaryCacheSize,
	}
}

// Registry is the single source of truth for live sessions. Summaries of
// ended sessions stay available through an LRU so late snapshot reads and
// the document generator can still resolve a follow-up reference.
type Registry struct {
	params     Params
	limits     Limits
	dispatcher *aigen.Dispatcher
	catalog    *persona.Catalog
	st         *store.Store
	sink       Sink
	rewarder   Rewarder

	mu       sync.Mutex
	sessions map[string]*Session
	byTopic  map[string]*Session

	summaries *lru.Cache
}

func NewRegistry(params Params, limits Limits, dispatcher *aigen.Dispatcher, catalog *persona.Catalog, st *store.Store, sink Sink) *Registry {
	if limits.SummaryCacheSize <= 0 {
		limits.SummaryCacheSize = 256
	}
	cache, _ := lru.New(limits.SummaryCacheSize)
	if sink == nil {
		sink = NopSink{}
	}
	return &Registry{
		params:     params,
		limits:     limits,
		dispatcher: dispatcher,
		catalog:    catalog,
		st:         st,
		sink:       sink,
		sessions:   map[string]*Session{},
		byTopic:    map[string]*Session{},
		summaries:  cache,
	}
}

// Rewarder credits the winning price guess when a session settles. The
// economy ledger satisfies it; nil means guesses carry no payout.
type Rewarder interface {
	CreditReward(ctx context.Context, userID, sessionID string, amount int64) (int64, error)
}

// SetRewarder wires the economy collaborator. Called once at startup,
// before any session exists.
func (r *Registry) SetRewarder(rw Rewarder) {
	r.rewarder = rw
}

// GetOrCreate returns the live session for a topic, creating one when
// absent. Sessions are never reused: once a run is torn down the next join
// gets a fresh session with a fresh id.
func (r *Registry) GetOrCreate(topicID, content string) (*Session, error) {
	r.mu.Lock()
	if s := r.byTopic[topicID]; s != nil && !s.Ending() {
		r.mu.Unlock()
		return s, nil
	}
	if r.limits.MaxSessions > 0 && len(r.sessions) >= r.limits.MaxSessions {
		r.mu.Unlock()
		return nil, ErrResourceExhausted
	}
	s := newSession(topicID, content, r.params, r.dispatcher, r.catalog, r.sink, r.st, r.scheduleRemove)
	r.sessions[s.ID] = s
	r.byTopic[topicID] = s
	r.mu.Unlock()

	metricSessionsCreated.Add(1)
	log.Info().Str("session_id", s.ID).Str("topic_id", topicID).Msg("session_start")
	s.start()
	return s, nil
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) Live() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Summary(sessionID string) (Summary, bool) {
	if v, ok := r.summaries.Get(sessionID); ok {
		return v.(Summary), true
	}
	return Summary{}, false
}

func (r *Registry) scheduleRemove(s *Session, summary Summary) {
	r.summaries.Add(s.ID, summary)
	if r.rewarder != nil && summary.WinnerUserID != "" && r.params.GuessReward > 0 {
		go func() {
			balance, err := r.rewarder.CreditReward(context.Background(), summary.WinnerUserID, summary.SessionID, r.params.GuessReward)
			if err != nil {
				log.Warn().Err(err).
					Str("session_id", summary.SessionID).
					Str("user_id", summary.WinnerUserID).
					Msg("guess reward credit failed")
				return
			}
			log.Info().
				Str("session_id", summary.SessionID).
				Str("user_id", summary.WinnerUserID).
				Int64("amount", r.params.GuessReward).
				Int64("balance", balance).
				Msg("guess reward credited")
		}()
	}
	grace := r.limits.TeardownGrace
	if grace < 0 {
		grace = 0
	}
	time.AfterFunc(grace, func() {
		r.mu.Lock()
		delete(r.sessions, s.ID)
		if r.byTopic[s.TopicID] == s {
			delete(r.byTopic, s.TopicID)
		}
		r.mu.Unlock()
	})
}

// StartReaper sweeps for idle sessions on a fixed interval, independent of
// any single session's timers.
func (r *Registry) StartReaper(ctx context.Context) {
	interval := r.limits.ReaperInterval
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
				r.reap(now)
			}
		}
	}()
}

func (r *Registry) reap(now time.Time) {
	if r.limits.IdleTimeout <= 0 {
		return
	}
	for _, s := range r.Live() {
		if s.Ending() {
			continue
		}
		if now.Sub(s.LastActivity()) > r.limits.IdleTimeout {
			log.Info().Str("session_id", s.ID).Msg("reaping idle session")
			metricSessionsReaped.Add(1)
			s.End("idle")
		}
	}
}
