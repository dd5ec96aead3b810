// Package store declares the persistence contracts the delivery core
// depends on. Implementations: postgres (production), redis (device
// cursors), memory (dev mode and tests).
package store

import (
	"context"
	"errors"

	"github.com/astrachat/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist or has
// already expired.
var ErrNotFound = errors.New("not found")

// Membership is the read side of the externally-managed membership data:
// group rosters, roles, bans, friendships and user profile versions. The
// join/approval workflow that mutates it lives outside this core.
type Membership interface {
	GetUserChannels(ctx context.Context, userID string) ([]string, error)
	GetUserFriends(ctx context.Context, userID string) ([]string, error)
	GetChannelMembers(ctx context.Context, channelID string) ([]string, error)
	GetChannelOwner(ctx context.Context, channelID string) (string, error)
	GetChannelAdmins(ctx context.Context, channelID string) ([]string, error)
	// GetChannelBans returns userID -> ban-expiry time id.
	GetChannelBans(ctx context.Context, channelID string) (map[string]string, error)
	GetUserName(ctx context.Context, userID string) (string, error)
	// GetUserVersion returns the user's current profile version, stamped
	// into outgoing messages as senderKey.
	GetUserVersion(ctx context.Context, userID string) (string, error)
}

// DeviceCursors stores each device's last-seen timestamp, the replay cursor.
type DeviceCursors interface {
	// GetDeviceLastSeen returns deviceID -> last-seen time id.
	GetDeviceLastSeen(ctx context.Context, userID string) (map[string]string, error)
	SetDeviceLastSeen(ctx context.Context, userID, deviceID, timeID string) error
}

// ChannelLog is a per-channel append-only message log keyed and ordered by
// the message time id.
type ChannelLog interface {
	Append(ctx context.Context, channelID string, rec model.StoredMessage) error
	// QuerySince returns records with time id strictly greater than since,
	// in time order.
	QuerySince(ctx context.Context, channelID, since string) ([]model.StoredMessage, error)
	Get(ctx context.Context, channelID, timeID string) (*model.StoredMessage, error)
	// Update rewrites type and payload of an existing record in place,
	// keeping its time id (revoke).
	Update(ctx context.Context, channelID, timeID, newType string, payload model.MessagePayload) error
}

// NotificationLog is the per-user notification record store.
type NotificationLog interface {
	Append(ctx context.Context, userID string, rec model.Notification) error
	QuerySince(ctx context.Context, userID, since string) ([]model.Notification, error)
}

// BlobStore resolves content-addressed attachments and tracks a per-channel
// integer reference count (floored at zero on decrement).
type BlobStore interface {
	Resolve(ctx context.Context, hash string) (*model.Blob, error)
	IncRef(ctx context.Context, hash, channelID string) error
	DecRef(ctx context.Context, hash, channelID string) error
}
