package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store"
)

// BlobStore resolves content-addressed attachments uploaded through the file
// service and tracks per-channel reference counts so forwarded and revoked
// attachments keep the underlying blob alive exactly as long as some channel
// still references it.
type BlobStore struct {
	pool *pgxpool.Pool
}

func NewBlobStore(pool *pgxpool.Pool) *BlobStore {
	return &BlobStore{pool: pool}
}

func (s *BlobStore) Resolve(ctx context.Context, hash string) (*model.Blob, error) {
	var b model.Blob
	err := s.pool.QueryRow(ctx,
		`SELECT hash, name, mime, data FROM blobs WHERE hash = $1`, hash).
		Scan(&b.Hash, &b.Name, &b.Type, &b.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob.Resolve %s: %w", hash, err)
	}
	return &b, nil
}

func (s *BlobStore) IncRef(ctx context.Context, hash, channelID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO blob_refs (hash, channel_id, refs) VALUES ($1, $2, 1)
		 ON CONFLICT (hash, channel_id) DO UPDATE SET refs = blob_refs.refs + 1`,
		hash, channelID)
	if err != nil {
		return fmt.Errorf("blob.IncRef %s/%s: %w", hash, channelID, err)
	}
	return nil
}

// DecRef floors the count at zero; decrementing a missing row is a no-op.
func (s *BlobStore) DecRef(ctx context.Context, hash, channelID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE blob_refs SET refs = refs - 1
		 WHERE hash = $1 AND channel_id = $2 AND refs > 0`,
		hash, channelID)
	if err != nil {
		return fmt.Errorf("blob.DecRef %s/%s: %w", hash, channelID, err)
	}
	return nil
}
