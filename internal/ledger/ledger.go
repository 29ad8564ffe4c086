package ledger

import (
	"context"

	"idea-auction/internal/store"
)

// Ledger is the economy collaborator: paid viewer actions debit credits,
// session rewards credit them back.
type Ledger struct {
	Store *store.Store
}

func New(s *store.Store) *Ledger {
	return &Ledger{Store: s}
}

func (l *Ledger) DebitGuess(ctx context.Context, userID, sessionID string, amount int64) (int64, error) {
	return l.Store.Debit(ctx, userID, amount, "guess_debit", "session", sessionID)
}

func (l *Ledger) CreditReward(ctx context.Context, userID, sessionID string, amount int64) (int64, error) {
	return l.Store.Credit(ctx, userID, amount, "reward_credit", "session", sessionID)
}
