package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRegistry(t *testing.T, sink Sink, limits Limits) *Registry {
	t.Helper()
	if limits.SummaryCacheSize == 0 {
		limits.SummaryCacheSize = 16
	}
	return NewRegistry(fastParams(10*time.Second), limits, failingDispatcher(), testCatalog(t), nil, sink)
}

func TestGetOrCreateReusesLiveSession(t *testing.T) {
	r := testRegistry(t, &recordSink{}, Limits{MaxSessions: 10})

	a, err := r.GetOrCreate("topic-1", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer a.End("test_done")
	b, err := r.GetOrCreate("topic-1", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != b {
		t.Fatalf("same topic got two sessions: %s vs %s", a.ID, b.ID)
	}
	if got, ok := r.Get(a.ID); !ok || got != a {
		t.Fatal("registry does not resolve the session by id")
	}
}

func TestEndedSessionNeverReused(t *testing.T) {
	sink := &recordSink{}
	r := testRegistry(t, sink, Limits{MaxSessions: 10})

	a, err := r.GetOrCreate("topic-1", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	a.End("manual")
	waitFor(t, 2*time.Second, func() bool { return sink.countEnded() == 1 })
	waitFor(t, 2*time.Second, func() bool {
		_, ok := r.Get(a.ID)
		return !ok
	})

	b, err := r.GetOrCreate("topic-1", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate after end: %v", err)
	}
	defer b.End("test_done")
	if b == a || b.ID == a.ID {
		t.Fatal("ended session was handed out again")
	}
}

func TestMaxSessionsExhausted(t *testing.T) {
	r := testRegistry(t, &recordSink{}, Limits{MaxSessions: 2})

	for i := 0; i < 2; i++ {
		s, err := r.GetOrCreate(fmt.Sprintf("topic-%d", i), "an idea")
		if err != nil {
			t.Fatalf("GetOrCreate %d: %v", i, err)
		}
		defer s.End("test_done")
	}
	if _, err := r.GetOrCreate("topic-overflow", "an idea"); !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
	// An existing topic still resolves even at the cap.
	if _, err := r.GetOrCreate("topic-0", "an idea"); err != nil {
		t.Fatalf("existing topic at cap: %v", err)
	}
}

func TestSummaryAvailableAfterTeardown(t *testing.T) {
	sink := &recordSink{}
	r := testRegistry(t, sink, Limits{MaxSessions: 10, TeardownGrace: time.Hour})

	s, err := r.GetOrCreate("topic-1", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	s.End("manual")
	waitFor(t, 2*time.Second, func() bool {
		_, ok := r.Summary(s.ID)
		return ok
	})

	sum, _ := r.Summary(s.ID)
	if sum.SessionID != s.ID || sum.Reason != "manual" {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.ReportID == "" {
		t.Fatal("summary has no report id")
	}
	// Within the grace window the session is still resolvable for late reads.
	if _, ok := r.Get(s.ID); !ok {
		t.Fatal("session removed before teardown grace elapsed")
	}
}

func TestReaperEndsIdleSessions(t *testing.T) {
	sink := &recordSink{}
	r := testRegistry(t, sink, Limits{
		MaxSessions:    10,
		IdleTimeout:    30 * time.Millisecond,
		ReaperInterval: 10 * time.Millisecond,
	})

	if _, err := r.GetOrCreate("topic-1", "an idea"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartReaper(ctx)

	waitFor(t, 2*time.Second, func() bool { return sink.countEnded() == 1 })
	for _, ev := range sink.snapshot() {
		if se, ok := ev.(SessionEnded); ok {
			if se.Reason != "idle" {
				t.Fatalf("end reason = %q, want idle", se.Reason)
			}
		}
	}
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	sink := &recordSink{}
	r := testRegistry(t, sink, Limits{MaxSessions: 10, IdleTimeout: 100 * time.Millisecond})

	s, err := r.GetOrCreate("topic-1", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	defer s.End("test_done")

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		s.Touch()
		r.reap(time.Now())
	}
	if s.Ending() {
		t.Fatal("active session reaped despite Touch")
	}
	r.reap(time.Now().Add(time.Second))
	if !s.Ending() {
		t.Fatal("idle session not reaped")
	}
}

type recordRewarder struct {
	mu     sync.Mutex
	calls  int
	userID string
	amount int64
}

func (r *recordRewarder) CreditReward(_ context.Context, userID, _ string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.userID = userID
	r.amount = amount
	return 1000 + amount, nil
}

func TestWinningGuessCreditsReward(t *testing.T) {
	params := fastParams(10 * time.Second)
	params.GuessReward = 50
	r := NewRegistry(params, Limits{MaxSessions: 4, SummaryCacheSize: 16},
		failingDispatcher(), testCatalog(t), nil, &recordSink{})
	rw := &recordRewarder{}
	r.SetRewarder(rw)

	s, err := r.GetOrCreate("topic-reward", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	s.RecordGuess("u1", 500, 0.8)
	waitFor(t, time.Second, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.guesses) == 1
	})
	s.End("completed")

	waitFor(t, 2*time.Second, func() bool {
		rw.mu.Lock()
		defer rw.mu.Unlock()
		return rw.calls == 1
	})
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.userID != "u1" || rw.amount != 50 {
		t.Fatalf("reward credited %d to %q, want 50 to u1", rw.amount, rw.userID)
	}
}

func TestNoRewardWithoutGuesses(t *testing.T) {
	params := fastParams(10 * time.Second)
	params.GuessReward = 50
	sink := &recordSink{}
	r := NewRegistry(params, Limits{MaxSessions: 4, SummaryCacheSize: 16},
		failingDispatcher(), testCatalog(t), nil, sink)
	rw := &recordRewarder{}
	r.SetRewarder(rw)

	s, err := r.GetOrCreate("topic-no-guess", "an idea")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	s.End("completed")
	waitFor(t, 2*time.Second, func() bool { return sink.countEnded() == 1 })
	time.Sleep(50 * time.Millisecond)

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.calls != 0 {
		t.Fatalf("reward credited with no guesses (calls=%d)", rw.calls)
	}
}
