// Package postgres implements the store contracts on pgx. Schema lives in
// migrations/.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astrachat/internal/logger"
	"github.com/astrachat/internal/store"
)

// MembershipStore reads the roster data the join/approval workflow writes.
type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) GetUserChannels(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("membership.GetUserChannels", time.Now())()
	rows, err := s.pool.Query(ctx,
		`SELECT channel_id FROM channel_members WHERE user_id = $1 ORDER BY channel_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("membership.GetUserChannels: %w", err)
	}
	return collectStrings(rows)
}

func (s *MembershipStore) GetUserFriends(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("membership.GetUserFriends", time.Now())()
	rows, err := s.pool.Query(ctx,
		`SELECT friend_id FROM friends WHERE user_id = $1 ORDER BY friend_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("membership.GetUserFriends: %w", err)
	}
	return collectStrings(rows)
}

func (s *MembershipStore) GetChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = $1 ORDER BY user_id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("membership.GetChannelMembers: %w", err)
	}
	return collectStrings(rows)
}

func (s *MembershipStore) GetChannelOwner(ctx context.Context, channelID string) (string, error) {
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id FROM channels WHERE id = $1`, channelID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("membership.GetChannelOwner: %w", err)
	}
	return owner, nil
}

func (s *MembershipStore) GetChannelAdmins(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM channel_members WHERE channel_id = $1 AND role = 'admin' ORDER BY user_id`,
		channelID)
	if err != nil {
		return nil, fmt.Errorf("membership.GetChannelAdmins: %w", err)
	}
	return collectStrings(rows)
}

func (s *MembershipStore) GetChannelBans(ctx context.Context, channelID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, expires FROM channel_bans WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, fmt.Errorf("membership.GetChannelBans: %w", err)
	}
	defer rows.Close()
	bans := make(map[string]string)
	for rows.Next() {
		var uid, expires string
		if err := rows.Scan(&uid, &expires); err != nil {
			return nil, fmt.Errorf("membership.GetChannelBans scan: %w", err)
		}
		bans[uid] = expires
	}
	return bans, rows.Err()
}

func (s *MembershipStore) GetUserName(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT username FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("membership.GetUserName: %w", err)
	}
	return name, nil
}

func (s *MembershipStore) GetUserVersion(ctx context.Context, userID string) (string, error) {
	var version string
	err := s.pool.QueryRow(ctx,
		`SELECT profile_version FROM users WHERE id = $1`, userID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("membership.GetUserVersion: %w", err)
	}
	return version, nil
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
