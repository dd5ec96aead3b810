package model

import "strings"

// ChannelKind distinguishes real groups from derived friend channels.
type ChannelKind string

const (
	KindGroup  ChannelKind = "group"
	KindFriend ChannelKind = "friend"
)

const friendChannelPrefix = "f."

// User ids are opaque and may themselves contain ".", so the ids embedded in
// a friend-channel id are escaped to keep the "." separator unambiguous.
var (
	friendEsc   = strings.NewReplacer("~", "~0", ".", "~1")
	friendUnesc = strings.NewReplacer("~0", "~", "~1", ".")
)

// FriendChannelID derives the virtual channel id for a pair of friends.
// The derivation is symmetric (order of a and b does not matter) and
// reversible (see FriendChannelPeer), so direct messages reuse the group
// fan-out machinery without a membership table.
func FriendChannelID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return friendChannelPrefix + friendEsc.Replace(a) + "." + friendEsc.Replace(b)
}

// IsFriendChannel reports whether id is a derived friend-channel id. Ids
// coming from the membership store are not guaranteed to avoid the "f."
// prefix; anything rendering for a reader must key on the channel's stored
// kind instead.
func IsFriendChannel(id string) bool {
	return strings.HasPrefix(id, friendChannelPrefix)
}

// FriendChannelPeer recovers the other party of a friend channel given one
// party's user id. ok is false when id is not a friend channel or self is
// not a party to it.
func FriendChannelPeer(id, self string) (peer string, ok bool) {
	if !IsFriendChannel(id) {
		return "", false
	}
	rest := strings.TrimPrefix(id, friendChannelPrefix)
	low, high, found := strings.Cut(rest, ".")
	if !found {
		return "", false
	}
	a, b := friendUnesc.Replace(low), friendUnesc.Replace(high)
	switch self {
	case a:
		return b, true
	case b:
		return a, true
	}
	return "", false
}
