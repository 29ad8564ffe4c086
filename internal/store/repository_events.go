package store

import "context"

func (s *Store) InsertEventAudit(ctx context.Context, sessionID, eventType, actor string, payload []byte) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO event_audits (id, session_id, event_type, actor, payload)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		NewID(), sessionID, eventType, actor, payload)
	return err
}

func (s *Store) ListEventAudits(ctx context.Context, sessionID string, limit, offset int) ([]EventAudit, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, session_id, event_type, COALESCE(actor, ''), payload, created_at
		 FROM event_audits
		 WHERE session_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []EventAudit{}
	for rows.Next() {
		var e EventAudit
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertViewerEvent(ctx context.Context, connectionID, userID, sessionID, eventType string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO viewer_events (id, connection_id, user_id, session_id, event_type)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)`,
		NewID(), connectionID, userID, sessionID, eventType)
	return err
}
