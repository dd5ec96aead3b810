package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astrachat/internal/logger"
	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store"
)

// ChatLogStore persists the per-channel message log. Payloads go into a
// jsonb column; time ids are plain text so lexicographic index order matches
// delivery order.
type ChatLogStore struct {
	pool *pgxpool.Pool
}

func NewChatLogStore(pool *pgxpool.Pool) *ChatLogStore {
	return &ChatLogStore{pool: pool}
}

func (s *ChatLogStore) Append(ctx context.Context, channelID string, rec model.StoredMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (channel_id, time_id, type, sender_id, sender_key, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		channelID, rec.Time, rec.Type, rec.SenderID, rec.SenderKey, rec.Payload)
	if err != nil {
		return fmt.Errorf("chatlog.Append %s/%s: %w", channelID, rec.Time, err)
	}
	return nil
}

func (s *ChatLogStore) QuerySince(ctx context.Context, channelID, since string) ([]model.StoredMessage, error) {
	defer logger.DeferLogDuration("chatlog.QuerySince", time.Now())()
	rows, err := s.pool.Query(ctx,
		`SELECT time_id, type, sender_id, sender_key, payload
		 FROM messages WHERE channel_id = $1 AND time_id > $2
		 ORDER BY time_id`,
		channelID, since)
	if err != nil {
		return nil, fmt.Errorf("chatlog.QuerySince %s: %w", channelID, err)
	}
	defer rows.Close()
	var out []model.StoredMessage
	for rows.Next() {
		var rec model.StoredMessage
		if err := rows.Scan(&rec.Time, &rec.Type, &rec.SenderID, &rec.SenderKey, &rec.Payload); err != nil {
			return nil, fmt.Errorf("chatlog.QuerySince scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ChatLogStore) Get(ctx context.Context, channelID, timeID string) (*model.StoredMessage, error) {
	var rec model.StoredMessage
	err := s.pool.QueryRow(ctx,
		`SELECT time_id, type, sender_id, sender_key, payload
		 FROM messages WHERE channel_id = $1 AND time_id = $2`,
		channelID, timeID).Scan(&rec.Time, &rec.Type, &rec.SenderID, &rec.SenderKey, &rec.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatlog.Get %s/%s: %w", channelID, timeID, err)
	}
	return &rec, nil
}

func (s *ChatLogStore) Update(ctx context.Context, channelID, timeID, newType string, payload model.MessagePayload) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET type = $3, payload = $4
		 WHERE channel_id = $1 AND time_id = $2`,
		channelID, timeID, newType, payload)
	if err != nil {
		return fmt.Errorf("chatlog.Update %s/%s: %w", channelID, timeID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
