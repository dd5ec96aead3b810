// Package ws is the real-time delivery core: it maps users to their
// connected devices and to the channels they belong to, fans out messages
// to every online device exactly once, and replays what was missed offline.
package ws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/astrachat/internal/channel"
	"github.com/astrachat/internal/logger"
	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/pipeline"
	"github.com/astrachat/internal/ratelimit"
	"github.com/astrachat/internal/store"
)

// Socket is one device's transport. SendJSON must be safe for concurrent
// use and must not block: implementations enqueue and deliver from their
// own writer, so a stalled peer degrades that peer only. Close is
// best-effort (the remote end may already be gone).
type Socket interface {
	SendJSON(v any) error
	Close() error
}

// PushNotifier nudges users with zero connected devices. nil disables push.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Config tunes the hub. Zero values fall back to defaults.
type Config struct {
	// DeviceCap bounds simultaneous devices per user; connecting one more
	// force-logs-out the oldest.
	DeviceCap int
	// ReplayLookback bounds replay for devices with no stored cursor.
	ReplayLookback time.Duration
	// SendRateMax/SendRateWindowSec throttle SendChannelMessage per sender.
	// SendRateMax == -1 disables the throttle.
	SendRateMax       int
	SendRateWindowSec int
}

const (
	defaultDeviceCap  = 3
	defaultLookback   = 72 * time.Hour
	defaultSendMax    = 30
	defaultSendWindow = 60
	storeTimeout      = 5 * time.Second
)

type device struct {
	id   string
	sock Socket

	mu        sync.Mutex
	replaying bool
	pending   []any // live sends parked while replay is in flight
}

// send enqueues v for the device. While the device's replay is in flight the
// value is parked instead, so replayed and live copies of the same record can
// be reconciled before the flush.
func (d *device) send(v any) error {
	d.mu.Lock()
	if d.replaying {
		d.pending = append(d.pending, v)
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	return d.sock.SendJSON(v)
}

// finishReplay flushes parked sends, dropping records the replay already
// delivered, and switches the device to direct delivery. d.mu is held across
// the flush so no live send overtakes the parked ones; SendJSON never
// blocks, so the critical section stays short.
func (d *device) finishReplay(sent map[string]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaying = false
	for _, v := range d.pending {
		if key, ok := replayDedupeKey(v); ok {
			if _, dup := sent[key]; dup {
				continue
			}
		}
		if err := d.sock.SendJSON(v); err != nil {
			logger.Errorf("ws flush parked send device=%s: %v", d.id, err)
		}
	}
	d.pending = nil
}

// replayDedupeKey identifies the persisted records that can reach a device
// both via replay and via live fan-out. Transient notices have no key.
func replayDedupeKey(v any) (string, bool) {
	switch m := v.(type) {
	case model.ChatMessage:
		return "c|" + m.Group + "|" + m.Time, true
	case model.SysMessage:
		if m.Type == model.SysNotification {
			return "n|" + m.Time, true
		}
	}
	return "", false
}

// chanRef names a channel together with its kind, which wire rendering
// depends on.
type chanRef struct {
	id   string
	kind model.ChannelKind
}

type userState struct {
	devices  []*device // connect order, oldest first
	channels map[string]struct{}
}

// Hub owns the user -> device, device -> socket and channel -> member
// topology and drives connect, disconnect, replay and the send path.
//
// The original event-loop design needed no locks; on a preemptive runtime
// the topology maps live under h.mu and per-channel state under each
// item's own lock. Socket and store I/O never happens while h.mu is held.
type Hub struct {
	mu       sync.RWMutex
	users    map[string]*userState
	channels map[string]*channel.Item

	timeMu   sync.Mutex
	lastTime map[string]int64 // per-sender monotonic time-id guard

	cfg        Config
	membership store.Membership
	cursors    store.DeviceCursors
	chatLog    store.ChannelLog
	notifLog   store.NotificationLog
	pipe       *pipeline.Pipeline
	limiter    *ratelimit.Limiter
	push       PushNotifier
}

func NewHub(
	cfg Config,
	membership store.Membership,
	cursors store.DeviceCursors,
	chatLog store.ChannelLog,
	notifLog store.NotificationLog,
	pipe *pipeline.Pipeline,
	limiter *ratelimit.Limiter,
	push PushNotifier,
) *Hub {
	if cfg.DeviceCap <= 0 {
		cfg.DeviceCap = defaultDeviceCap
	}
	if cfg.ReplayLookback <= 0 {
		cfg.ReplayLookback = defaultLookback
	}
	if cfg.SendRateMax == 0 {
		cfg.SendRateMax = defaultSendMax
	}
	if cfg.SendRateWindowSec <= 0 {
		cfg.SendRateWindowSec = defaultSendWindow
	}
	return &Hub{
		users:      make(map[string]*userState),
		channels:   make(map[string]*channel.Item),
		lastTime:   make(map[string]int64),
		cfg:        cfg,
		membership: membership,
		cursors:    cursors,
		chatLog:    chatLog,
		notifLog:   notifLog,
		pipe:       pipe,
		limiter:    limiter,
		push:       push,
	}
}

// nextTimeID assigns the message time id: microsecond epoch, bumped when a
// sender's clock ties or regresses, so ids are strictly increasing per
// sender and double as idempotency keys.
func (h *Hub) nextTimeID(senderID string) string {
	h.timeMu.Lock()
	defer h.timeMu.Unlock()
	now := time.Now().UnixMicro()
	if now <= h.lastTime[senderID] {
		now = h.lastTime[senderID] + 1
	}
	h.lastTime[senderID] = now
	return model.TimeID(time.UnixMicro(now))
}

// Connect registers a device, joins the user to every channel their
// membership implies, and starts async replay of missed records to the new
// socket. At the device cap the oldest device is force-logged-out first.
func (h *Hub) Connect(ctx context.Context, userID, deviceID string, sock Socket) error {
	groups, err := h.membership.GetUserChannels(ctx, userID)
	if err != nil {
		return fmt.Errorf("connect %s: load channels: %w", userID, err)
	}
	friends, err := h.membership.GetUserFriends(ctx, userID)
	if err != nil {
		return fmt.Errorf("connect %s: load friends: %w", userID, err)
	}

	wanted := make([]chanRef, 0, len(groups)+len(friends))
	for _, g := range groups {
		wanted = append(wanted, chanRef{g, model.KindGroup})
	}
	for _, f := range friends {
		wanted = append(wanted, chanRef{model.FriendChannelID(userID, f), model.KindFriend})
	}

	d := &device{id: deviceID, sock: sock, replaying: true}

	h.mu.Lock()
	us := h.users[userID]
	if us == nil {
		us = &userState{channels: make(map[string]struct{})}
		h.users[userID] = us
	}
	var evicted *device
	if len(us.devices) >= h.cfg.DeviceCap {
		evicted = us.devices[0]
		us.devices = us.devices[1:]
	}
	us.devices = append(us.devices, d)
	h.mu.Unlock()

	if evicted != nil {
		// The evicted device learns why before its socket goes away.
		out := notice(model.SysLogout, "", userID, noticeLoggedOut)
		if err := evicted.sock.SendJSON(out); err != nil {
			logger.Errorf("ws evict notify user=%s device=%s: %v", userID, evicted.id, err)
		}
		evicted.sock.Close()
		h.persistCursor(userID, evicted.id)
	}

	// Loading channel state hits the store, so it happens off the lock.
	// Membership is committed only after re-checking that a concurrent
	// Disconnect has not torn this device down in the meantime; otherwise
	// the user would linger in channel online sets with zero devices.
	items := make([]*channel.Item, 0, len(wanted))
	for _, w := range wanted {
		items = append(items, h.getOrCreateItem(ctx, w.id, w.kind))
	}

	h.mu.Lock()
	alive := h.users[userID] == us
	if alive {
		alive = false
		for _, dev := range us.devices {
			if dev == d {
				alive = true
				break
			}
		}
	}
	if alive {
		for i, it := range items {
			// A racing disconnect may have dropped the item as empty in the
			// meantime; re-resolve so membership never lands on an orphan.
			if cur, ok := h.channels[wanted[i].id]; ok {
				it = cur
			} else {
				h.channels[wanted[i].id] = it
			}
			it.AddUser(userID)
			us.channels[wanted[i].id] = struct{}{}
		}
	} else {
		for _, it := range items {
			if it.OnlineCount() == 0 {
				delete(h.channels, it.ID)
			}
		}
	}
	h.mu.Unlock()
	if !alive {
		return fmt.Errorf("connect %s: device %s disconnected during setup", userID, deviceID)
	}

	since, err := h.replayCursor(ctx, userID, deviceID)
	if err != nil {
		logger.Errorf("ws cursor user=%s device=%s: %v", userID, deviceID, err)
	}
	go h.replay(d, userID, since, wanted)
	return nil
}

// replayCursor returns the device's last-seen time id, or the bounded
// lookback for a brand-new device.
func (h *Hub) replayCursor(ctx context.Context, userID, deviceID string) (string, error) {
	fallback := model.TimeID(time.Now().Add(-h.cfg.ReplayLookback))
	seen, err := h.cursors.GetDeviceLastSeen(ctx, userID)
	if err != nil {
		return fallback, err
	}
	if since, ok := seen[deviceID]; ok && since != "" {
		return since, nil
	}
	return fallback, nil
}

// replay sends all notification records and all channel messages newer than
// since directly to one device's socket: notifications first, then channels
// in id order, records in time order. One failed send never aborts the rest.
// Records appended while the replay runs can surface on both paths; the
// device parks its live sends until finishReplay reconciles the two (see
// device.send), so each record reaches the socket exactly once.
func (h *Hub) replay(d *device, userID, since string, targets []chanRef) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer logger.DeferLogDuration("ws.replay", time.Now())()

	sent := make(map[string]struct{})
	defer func() { d.finishReplay(sent) }()

	notifs, err := h.notifLog.QuerySince(ctx, userID, since)
	if err != nil {
		logger.Errorf("ws replay notifications user=%s: %v", userID, err)
	}
	for _, n := range notifs {
		out := notificationWire(n)
		if key, ok := replayDedupeKey(out); ok {
			sent[key] = struct{}{}
		}
		if err := d.sock.SendJSON(out); err != nil {
			logger.Errorf("ws replay notification user=%s time=%s: %v", userID, n.Time, err)
		}
	}

	sorted := append([]chanRef(nil), targets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })
	for _, t := range sorted {
		recs, err := h.chatLog.QuerySince(ctx, t.id, since)
		if err != nil {
			logger.Errorf("ws replay channel=%s user=%s: %v", t.id, userID, err)
			continue
		}
		for _, rec := range recs {
			out := h.wireMessage(t.id, t.kind, userID, rec)
			if key, ok := replayDedupeKey(out); ok {
				sent[key] = struct{}{}
			}
			if err := d.sock.SendJSON(out); err != nil {
				logger.Errorf("ws replay send channel=%s time=%s: %v", t.id, rec.Time, err)
			}
		}
	}
}

// wireMessage converts a stored record into the wire shape for one reader.
// Friend-channel records are addressed using the reader's own view of the
// logical target: the group field carries the peer's id, not the derived
// one. Classification keys on the channel's kind, never on the id shape; a
// real group id is opaque and may look like anything, "f." prefix included.
func (h *Hub) wireMessage(chID string, kind model.ChannelKind, readerID string, rec model.StoredMessage) model.ChatMessage {
	out := model.ChatMessage{
		Time:      rec.Time,
		Type:      rec.Type,
		Group:     chID,
		GroupType: model.KindGroup,
		SenderID:  rec.SenderID,
		SenderKey: rec.SenderKey,
		Payload:   rec.Payload,
	}
	if kind == model.KindFriend {
		if peer, ok := model.FriendChannelPeer(chID, readerID); ok {
			out.Group = peer
			out.GroupType = model.KindFriend
		}
	}
	return out
}

// getOrCreateItem returns the runtime state for a channel, creating it on
// first reference. Group items load their ban table from the membership
// store at creation; friend channels have none.
func (h *Hub) getOrCreateItem(ctx context.Context, id string, kind model.ChannelKind) *channel.Item {
	h.mu.RLock()
	it, ok := h.channels[id]
	h.mu.RUnlock()
	if ok {
		return it
	}

	var bans map[string]string
	if kind == model.KindGroup {
		var err error
		bans, err = h.membership.GetChannelBans(ctx, id)
		if err != nil {
			logger.Errorf("ws load bans channel=%s: %v", id, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.channels[id]; ok {
		return existing
	}
	it = channel.NewItem(id, kind, h.chatLog, bans)
	h.channels[id] = it
	return it
}

// Disconnect persists the device's replay cursor and removes it from the
// topology. The last device of a user drops the user from every channel
// they were tracked in; channels with nobody left online are discarded.
func (h *Hub) Disconnect(ctx context.Context, userID, deviceID string) {
	h.mu.Lock()
	us, ok := h.users[userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	idx := -1
	for i, d := range us.devices {
		if d.id == deviceID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Already evicted or never registered.
		h.mu.Unlock()
		return
	}
	d := us.devices[idx]
	us.devices = append(us.devices[:idx], us.devices[idx+1:]...)
	last := len(us.devices) == 0
	if last {
		for chID := range us.channels {
			if it, ok := h.channels[chID]; ok {
				it.RemoveUser(userID)
				if it.OnlineCount() == 0 {
					delete(h.channels, chID)
				}
			}
		}
		delete(h.users, userID)
	}
	h.mu.Unlock()

	d.sock.Close()
	h.persistCursor(userID, deviceID)
}

func (h *Hub) persistCursor(userID, deviceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.cursors.SetDeviceLastSeen(ctx, userID, deviceID, model.NowID()); err != nil {
		logger.Errorf("ws persist cursor user=%s device=%s: %v", userID, deviceID, err)
	}
}

// JoinChannel is called by the membership collaborator when a connected
// user gains membership (group join accepted, friend accepted). Offline
// users need nothing: their topology is rebuilt on next connect.
func (h *Hub) JoinChannel(ctx context.Context, userID, channelID string, kind model.ChannelKind) {
	h.mu.RLock()
	us, ok := h.users[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	it := h.getOrCreateItem(ctx, channelID, kind)
	it.AddUser(userID)
	h.mu.Lock()
	us.channels[channelID] = struct{}{}
	h.mu.Unlock()
	h.broadcastNotice(it, notice(model.SysJoined, string(kind), channelID, userID))
}

// LeaveChannel removes a user from a channel they lost membership of.
func (h *Hub) LeaveChannel(ctx context.Context, userID, channelID string) {
	h.mu.Lock()
	us, tracked := h.users[userID]
	it, ok := h.channels[channelID]
	if tracked {
		delete(us.channels, channelID)
	}
	if ok {
		it.RemoveUser(userID)
		if it.OnlineCount() == 0 {
			delete(h.channels, channelID)
			ok = false
		}
	}
	h.mu.Unlock()
	if ok {
		h.broadcastNotice(it, notice(model.SysLeft, "", channelID, userID))
	}
}

// DisbandChannel notifies all currently-online members, then tears the
// channel down.
func (h *Hub) DisbandChannel(ctx context.Context, channelID string) {
	h.mu.RLock()
	it, ok := h.channels[channelID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	members := it.OnlineUsers()
	out := notice(model.SysDisband, "", channelID, "")
	for _, uid := range members {
		h.SendToUser(uid, out)
	}

	h.mu.Lock()
	for _, uid := range members {
		if us, tracked := h.users[uid]; tracked {
			delete(us.channels, channelID)
		}
	}
	delete(h.channels, channelID)
	h.mu.Unlock()
}

// SendToUser fans a one-off object out to every connected device of one
// user. No persistence, no pipeline. Sends enqueue in order; each socket's
// own writer drains independently, so one stalled device degrades that
// device only while recipients still observe a sender's messages in order.
func (h *Hub) SendToUser(userID string, v any) {
	h.mu.RLock()
	us, ok := h.users[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	devs := append([]*device(nil), us.devices...)
	h.mu.RUnlock()

	for _, d := range devs {
		h.safeSendDevice(d, userID, v)
	}
}

// safeSendDevice delivers to one device, swallowing both errors and panics
// so a broken connection can never take a broadcast down with it.
func (h *Hub) safeSendDevice(d *device, userID string, v any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ws send panic user=%s: %v", userID, r)
		}
	}()
	if err := d.send(v); err != nil {
		logger.Errorf("ws send user=%s: %v", userID, err)
	}
}

// safeSend is the raw-socket variant of safeSendDevice, for replies that
// must bypass any replay parking (the echo acknowledgement).
func (h *Hub) safeSend(s Socket, userID string, v any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ws send panic user=%s: %v", userID, r)
		}
	}()
	if err := s.SendJSON(v); err != nil {
		logger.Errorf("ws send user=%s: %v", userID, err)
	}
}

// SendNotification persists a notification record, fills its one-blank
// template, and delivers it like SendToUser. Persisted records are replayed
// on reconnect until consumed.
func (h *Hub) SendNotification(ctx context.Context, userID, fill string, n model.Notification) {
	if n.Time == "" {
		n.Time = model.NowID()
	}
	n.Payload = fmt.Sprintf(n.Payload, fill)
	if n.Meta == nil {
		n.Meta = make(map[string]any, 1)
	}
	n.Meta["fill"] = fill
	if err := h.notifLog.Append(ctx, userID, n); err != nil {
		logger.Errorf("ws persist notification user=%s: %v", userID, err)
	}
	h.SendToUser(userID, notificationWire(n))
}

// HandleMessage is the per-connection entry point for the send path.
// readPump calls it synchronously, which is what guarantees a single
// sender's messages hit the pipeline in the order received.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg model.ChatMessage) {
	h.SendChannelMessage(ctx, c.userID, c, &msg)
}

// SendChannelMessage is the hot path: rate limit, resolve channel, ban
// check, pipeline, fan-out, echo, persist. src is the originating device's
// socket (may be nil for server-originated sends); failures are resolved
// into notices to the sender only.
func (h *Hub) SendChannelMessage(ctx context.Context, userID string, src Socket, msg *model.ChatMessage) {
	defer logger.DeferLogDuration("ws.SendChannelMessage", time.Now())()

	if !h.limiter.Allow("sendChannelMessage", ratelimit.User(userID), h.cfg.SendRateMax, h.cfg.SendRateWindowSec) {
		h.SendToUser(userID, notice(model.SysRateLimit, "", msg.Group, noticeRateLimited))
		return
	}

	// Resolve the effective channel: a friend send targets the peer's user
	// id on the wire, the derived virtual id internally.
	chID := msg.Group
	if msg.GroupType == model.KindFriend {
		chID = model.FriendChannelID(userID, msg.Group)
	}

	h.mu.RLock()
	us, connected := h.users[userID]
	var tracked bool
	if connected {
		_, tracked = us.channels[chID]
	}
	it, exists := h.channels[chID]
	h.mu.RUnlock()
	if !connected || !tracked || !exists {
		// Stale client state: silently drop.
		logger.Infof("ws drop send from non-member user=%s channel=%s", userID, chID)
		return
	}

	if it.Kind == model.KindGroup && msg.Type != model.TypeSystem {
		if banned, expiry := it.IsBanned(userID); banned {
			h.SendToUser(userID, notice(model.SysBan, "", chID, expiry))
			return
		}
	}

	msg.Time = h.nextTimeID(userID)
	msg.SenderID = userID

	if res := h.pipe.Run(ctx, pipeline.Env{UserID: userID, Channel: it}, msg); res != pipeline.OK {
		h.SendToUser(userID, notice(model.SysFail, msg.Type, chID, "failed: "+res.Reason()))
		return
	}

	senderKey, err := h.membership.GetUserVersion(ctx, userID)
	if err != nil {
		logger.Errorf("ws sender version user=%s: %v", userID, err)
	}

	rec := model.StoredMessage{
		Time:      msg.Time,
		Type:      msg.Type,
		SenderID:  userID,
		SenderKey: senderKey,
		Payload:   msg.Payload,
	}
	for _, uid := range it.OnlineUsers() {
		h.SendToUser(uid, h.wireMessage(chID, it.Kind, uid, rec))
	}

	if msg.Echo != nil && src != nil {
		ack := notice(model.SysEchoBack, fmt.Sprint(msg.Echo), chID, msg.Time)
		h.safeSend(src, userID, ack)
	}

	// Revokes rewrite their target in place and system notices are
	// transient; neither is appended to the channel log.
	if msg.Type != model.TypeRevoke && msg.Type != model.TypeSystem {
		if err := h.chatLog.Append(ctx, chID, rec); err != nil {
			logger.Errorf("ws append channel=%s time=%s: %v", chID, msg.Time, err)
		}
		h.notifyOffline(chID, it.Kind, userID, msg)
	}
}

// notifyOffline sends a best-effort push nudge to members with zero
// connected devices.
func (h *Hub) notifyOffline(chID string, kind model.ChannelKind, senderID string, msg *model.ChatMessage) {
	if h.push == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var members []string
	if kind == model.KindFriend {
		if peer, ok := model.FriendChannelPeer(chID, senderID); ok {
			members = []string{peer}
		}
	} else {
		var err error
		members, err = h.membership.GetChannelMembers(ctx, chID)
		if err != nil {
			logger.Errorf("ws push members channel=%s: %v", chID, err)
			return
		}
	}

	title, err := h.membership.GetUserName(ctx, senderID)
	if err != nil || title == "" {
		title = senderID
	}
	body := msg.Payload.Content
	if msg.Type != model.TypeText || msg.Payload.Encrypted() || body == "" {
		body = "New message"
	}
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"channel": chID, "time": msg.Time}

	h.mu.RLock()
	var offline []string
	for _, uid := range members {
		if uid == senderID {
			continue
		}
		if _, ok := h.users[uid]; !ok {
			offline = append(offline, uid)
		}
	}
	h.mu.RUnlock()

	for _, uid := range offline {
		go h.push.Notify(context.Background(), uid, title, body, data)
	}
}

// broadcastNotice fans a system notice out to every online member of a
// channel.
func (h *Hub) broadcastNotice(it *channel.Item, out model.SysMessage) {
	for _, uid := range it.OnlineUsers() {
		h.SendToUser(uid, out)
	}
}

// DeviceCount reports how many devices a user has connected.
func (h *Hub) DeviceCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	us, ok := h.users[userID]
	if !ok {
		return 0
	}
	return len(us.devices)
}

// ChannelOnline reports the users currently online in a channel, nil when
// nobody is.
func (h *Hub) ChannelOnline(channelID string) []string {
	h.mu.RLock()
	it, ok := h.channels[channelID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return it.OnlineUsers()
}

// ConnectionCount reports the total number of connected devices across all
// users.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, us := range h.users {
		n += len(us.devices)
	}
	return n
}

// Shutdown persists every device's replay cursor and closes every socket.
// The hub is unusable afterwards.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	type conn struct {
		userID, deviceID string
		sock             Socket
	}
	var conns []conn
	for uid, us := range h.users {
		for _, d := range us.devices {
			conns = append(conns, conn{uid, d.id, d.sock})
		}
	}
	h.users = make(map[string]*userState)
	h.channels = make(map[string]*channel.Item)
	h.mu.Unlock()

	for _, c := range conns {
		c.sock.Close()
		h.persistCursor(c.userID, c.deviceID)
	}
}

// SetBan updates a group channel's in-memory ban table; the membership
// collaborator calls it when an admin bans or unbans a member.
func (h *Hub) SetBan(channelID, userID, expiry string) {
	h.mu.RLock()
	it, ok := h.channels[channelID]
	h.mu.RUnlock()
	if ok {
		it.SetBan(userID, expiry)
	}
}
