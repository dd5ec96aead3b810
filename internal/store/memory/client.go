// Package memory implements every store contract in process memory.
// Used by -dev mode (no external DB required) and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store"
)

type channelInfo struct {
	owner   string
	admins  map[string]struct{}
	members map[string]struct{}
	bans    map[string]string
}

type Client struct {
	mu       sync.RWMutex
	channels map[string]*channelInfo
	friends  map[string]map[string]struct{}
	names    map[string]string
	versions map[string]string
	cursors  map[string]map[string]string
	logs     map[string][]model.StoredMessage
	notifs   map[string][]model.Notification
	blobs    map[string]*model.Blob
	blobRefs map[string]map[string]int
}

func New() *Client {
	return &Client{
		channels: make(map[string]*channelInfo),
		friends:  make(map[string]map[string]struct{}),
		names:    make(map[string]string),
		versions: make(map[string]string),
		cursors:  make(map[string]map[string]string),
		logs:     make(map[string][]model.StoredMessage),
		notifs:   make(map[string][]model.Notification),
		blobs:    make(map[string]*model.Blob),
		blobRefs: make(map[string]map[string]int),
	}
}

func (c *Client) Close() error { return nil }

// --- seeding (dev mode and tests) ---

// PutChannel registers a group with its roster. Members includes the owner
// and admins.
func (c *Client) PutChannel(channelID, owner string, admins, members []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := &channelInfo{
		owner:   owner,
		admins:  make(map[string]struct{}, len(admins)),
		members: make(map[string]struct{}, len(members)),
		bans:    make(map[string]string),
	}
	for _, a := range admins {
		info.admins[a] = struct{}{}
	}
	for _, m := range members {
		info.members[m] = struct{}{}
	}
	c.channels[channelID] = info
}

// PutFriends registers a mutual friendship.
func (c *Client) PutFriends(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.friends[a] == nil {
		c.friends[a] = make(map[string]struct{})
	}
	if c.friends[b] == nil {
		c.friends[b] = make(map[string]struct{})
	}
	c.friends[a][b] = struct{}{}
	c.friends[b][a] = struct{}{}
}

func (c *Client) PutUser(userID, name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[userID] = name
	c.versions[userID] = version
}

func (c *Client) PutBan(channelID, userID, expiry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info := c.channels[channelID]; info != nil {
		info.bans[userID] = expiry
	}
}

func (c *Client) PutBlob(b *model.Blob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[b.Hash] = b
}

// BlobRefs returns the current refcount of hash for channelID.
func (c *Client) BlobRefs(hash, channelID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blobRefs[hash][channelID]
}

// --- store.Membership ---

func (c *Client) GetUserChannels(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, info := range c.channels {
		if _, ok := info.members[userID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) GetUserFriends(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id := range c.friends[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) GetChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var ids []string
	for id := range info.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) GetChannelOwner(ctx context.Context, channelID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.channels[channelID]
	if !ok {
		return "", store.ErrNotFound
	}
	return info.owner, nil
}

func (c *Client) GetChannelAdmins(ctx context.Context, channelID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var ids []string
	for id := range info.admins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) GetChannelBans(ctx context.Context, channelID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.channels[channelID]
	if !ok {
		return map[string]string{}, nil
	}
	bans := make(map[string]string, len(info.bans))
	for k, v := range info.bans {
		bans[k] = v
	}
	return bans, nil
}

func (c *Client) GetUserName(ctx context.Context, userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.names[userID]; ok {
		return name, nil
	}
	return userID, nil
}

func (c *Client) GetUserVersion(ctx context.Context, userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[userID], nil
}

// --- store.DeviceCursors ---

func (c *Client) GetDeviceLastSeen(ctx context.Context, userID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.cursors[userID]))
	for k, v := range c.cursors[userID] {
		out[k] = v
	}
	return out, nil
}

func (c *Client) SetDeviceLastSeen(ctx context.Context, userID, deviceID, timeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursors[userID] == nil {
		c.cursors[userID] = make(map[string]string)
	}
	c.cursors[userID][deviceID] = timeID
	return nil
}

// --- store.ChannelLog ---

func (c *Client) Append(ctx context.Context, channelID string, rec model.StoredMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[channelID] = append(c.logs[channelID], rec)
	return nil
}

func (c *Client) QuerySince(ctx context.Context, channelID, since string) ([]model.StoredMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.StoredMessage
	for _, rec := range c.logs[channelID] {
		if rec.Time > since {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (c *Client) Get(ctx context.Context, channelID, timeID string) (*model.StoredMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.logs[channelID] {
		if c.logs[channelID][i].Time == timeID {
			rec := c.logs[channelID][i]
			return &rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (c *Client) Update(ctx context.Context, channelID, timeID, newType string, payload model.MessagePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.logs[channelID] {
		if c.logs[channelID][i].Time == timeID {
			c.logs[channelID][i].Type = newType
			c.logs[channelID][i].Payload = payload
			return nil
		}
	}
	return store.ErrNotFound
}

// --- store.NotificationLog ---

// Notifications returns the notification-log view of the client. A separate
// view because its method set collides with ChannelLog on the client itself.
func (c *Client) Notifications() store.NotificationLog { return notifLog{c} }

type notifLog struct{ c *Client }

func (n notifLog) Append(ctx context.Context, userID string, rec model.Notification) error {
	n.c.mu.Lock()
	defer n.c.mu.Unlock()
	n.c.notifs[userID] = append(n.c.notifs[userID], rec)
	return nil
}

func (n notifLog) QuerySince(ctx context.Context, userID, since string) ([]model.Notification, error) {
	n.c.mu.RLock()
	defer n.c.mu.RUnlock()
	var out []model.Notification
	for _, rec := range n.c.notifs[userID] {
		if rec.Time > since {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// --- store.BlobStore ---

func (c *Client) Resolve(ctx context.Context, hash string) (*model.Blob, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blobs[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (c *Client) IncRef(ctx context.Context, hash, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.blobs[hash]; !ok {
		return store.ErrNotFound
	}
	if c.blobRefs[hash] == nil {
		c.blobRefs[hash] = make(map[string]int)
	}
	c.blobRefs[hash][channelID]++
	return nil
}

func (c *Client) DecRef(ctx context.Context, hash, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs, ok := c.blobRefs[hash]
	if !ok || refs[channelID] <= 0 {
		return nil
	}
	refs[channelID]--
	return nil
}
