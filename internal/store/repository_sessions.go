package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) InsertSessionAudit(ctx context.Context, sessionID, topicID string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO session_audits (id, topic_id, status) VALUES ($1, $2, 'live')`,
		sessionID, topicID)
	return err
}

func (s *Store) MarkSessionEnded(ctx context.Context, a SessionAudit) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE session_audits
		 SET status = 'ended', final_phase = $2, end_reason = $3,
		     message_count = $4, call_count = $5, cost_usd = $6,
		     highest_bid = $7, report_id = $8, ended_at = now()
		 WHERE id = $1`,
		a.ID, a.FinalPhase, a.EndReason, a.MessageCount, a.CallCount,
		a.CostUSD, a.HighestBid, a.ReportID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSessionAudit(ctx context.Context, sessionID string) (*SessionAudit, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT id, topic_id, status, COALESCE(final_phase, ''), COALESCE(end_reason, ''),
		        message_count, call_count, cost_usd, highest_bid, COALESCE(report_id, ''),
		        created_at, ended_at
		 FROM session_audits WHERE id = $1`,
		sessionID)
	var a SessionAudit
	if err := row.Scan(&a.ID, &a.TopicID, &a.Status, &a.FinalPhase, &a.EndReason,
		&a.MessageCount, &a.CallCount, &a.CostUSD, &a.HighestBid, &a.ReportID,
		&a.CreatedAt, &a.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListSessionAudits(ctx context.Context, status string, limit, offset int) ([]SessionAudit, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, topic_id, status, COALESCE(final_phase, ''), COALESCE(end_reason, ''),
		        message_count, call_count, cost_usd, highest_bid, COALESCE(report_id, ''),
		        created_at, ended_at
		 FROM session_audits
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SessionAudit{}
	for rows.Next() {
		var a SessionAudit
		if err := rows.Scan(&a.ID, &a.TopicID, &a.Status, &a.FinalPhase, &a.EndReason,
			&a.MessageCount, &a.CallCount, &a.CostUSD, &a.HighestBid, &a.ReportID,
			&a.CreatedAt, &a.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
