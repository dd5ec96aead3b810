// Package channel holds per-channel runtime state: the set of online members
// and the ban table. Items are created lazily on first reference and dropped
// once the last online member leaves.
package channel

import (
	"sync"

	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store"
)

// Item is the in-memory state of one broadcast domain (group or derived
// friend channel). Log is the handle to the channel's persisted history.
type Item struct {
	ID   string
	Kind model.ChannelKind
	Log  store.ChannelLog

	mu     sync.RWMutex
	online map[string]struct{}
	bans   map[string]string // userID -> ban-expiry time id
}

// NewItem creates an empty item. bans may be nil; group items get theirs
// loaded from the membership store on first reference.
func NewItem(id string, kind model.ChannelKind, log store.ChannelLog, bans map[string]string) *Item {
	if bans == nil {
		bans = make(map[string]string)
	}
	return &Item{
		ID:     id,
		Kind:   kind,
		Log:    log,
		online: make(map[string]struct{}),
		bans:   bans,
	}
}

func (it *Item) AddUser(userID string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.online[userID] = struct{}{}
}

func (it *Item) RemoveUser(userID string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	delete(it.online, userID)
}

func (it *Item) OnlineCount() int {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return len(it.online)
}

func (it *Item) OnlineUsers() []string {
	it.mu.RLock()
	defer it.mu.RUnlock()
	users := make([]string, 0, len(it.online))
	for id := range it.online {
		users = append(users, id)
	}
	return users
}

// Online reports whether userID is currently tracked in this channel.
func (it *Item) Online(userID string) bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	_, ok := it.online[userID]
	return ok
}

// SetBan records a ban until expiry (a time id). An empty expiry lifts the
// ban immediately.
func (it *Item) SetBan(userID, expiry string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if expiry == "" {
		delete(it.bans, userID)
		return
	}
	it.bans[userID] = expiry
}

// IsBanned reports whether userID is banned right now. An entry whose expiry
// has passed is inert; no sweep needed, it is simply ignored.
func (it *Item) IsBanned(userID string) (bool, string) {
	it.mu.RLock()
	defer it.mu.RUnlock()
	expiry, ok := it.bans[userID]
	if !ok || expiry <= model.NowID() {
		return false, ""
	}
	return true, expiry
}
