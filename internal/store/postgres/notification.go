package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astrachat/internal/model"
)

// NotificationStore persists the per-user notification log.
type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Append(ctx context.Context, userID string, rec model.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (user_id, time_id, type, sub_type, target, state, payload, meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, rec.Time, rec.Type, rec.SubType, rec.Target, rec.State, rec.Payload, rec.Meta)
	if err != nil {
		return fmt.Errorf("notification.Append %s/%s: %w", userID, rec.Time, err)
	}
	return nil
}

func (s *NotificationStore) QuerySince(ctx context.Context, userID, since string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT time_id, type, sub_type, target, state, payload, meta
		 FROM notifications WHERE user_id = $1 AND time_id > $2
		 ORDER BY time_id`,
		userID, since)
	if err != nil {
		return nil, fmt.Errorf("notification.QuerySince %s: %w", userID, err)
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var rec model.Notification
		if err := rows.Scan(&rec.Time, &rec.Type, &rec.SubType, &rec.Target, &rec.State, &rec.Payload, &rec.Meta); err != nil {
			return nil, fmt.Errorf("notification.QuerySince scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
