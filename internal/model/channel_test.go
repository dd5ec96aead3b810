package model

import (
	"testing"
	"time"
)

func TestFriendChannelIDSymmetric(t *testing.T) {
	if FriendChannelID("alice", "bob") != FriendChannelID("bob", "alice") {
		t.Fatalf("derivation is not symmetric: %q vs %q",
			FriendChannelID("alice", "bob"), FriendChannelID("bob", "alice"))
	}
}

func TestFriendChannelPeer(t *testing.T) {
	id := FriendChannelID("alice", "bob")

	tests := []struct {
		self     string
		wantPeer string
		wantOK   bool
	}{
		{"alice", "bob", true},
		{"bob", "alice", true},
		{"carol", "", false},
	}
	for _, tt := range tests {
		peer, ok := FriendChannelPeer(id, tt.self)
		if ok != tt.wantOK || peer != tt.wantPeer {
			t.Errorf("FriendChannelPeer(%q, %q) = %q, %v; want %q, %v",
				id, tt.self, peer, ok, tt.wantPeer, tt.wantOK)
		}
	}

	if _, ok := FriendChannelPeer("g-123", "alice"); ok {
		t.Error("group id should not resolve as friend channel")
	}
}

func TestFriendChannelIDDottedIDs(t *testing.T) {
	// User ids are opaque; a dot inside one must not collapse distinct pairs
	// onto the same derived id.
	if FriendChannelID("a.b", "c") == FriendChannelID("a", "b.c") {
		t.Fatal("distinct pairs derived the same channel id")
	}

	tests := []struct {
		a, b string
	}{
		{"a.b", "c"},
		{"x~1", "y.z"},
		{"..", "~~"},
	}
	for _, tt := range tests {
		id := FriendChannelID(tt.a, tt.b)
		if peer, ok := FriendChannelPeer(id, tt.a); !ok || peer != tt.b {
			t.Errorf("FriendChannelPeer(%q, %q) = %q, %v; want %q, true", id, tt.a, peer, ok, tt.b)
		}
		if peer, ok := FriendChannelPeer(id, tt.b); !ok || peer != tt.a {
			t.Errorf("FriendChannelPeer(%q, %q) = %q, %v; want %q, true", id, tt.b, peer, ok, tt.a)
		}
	}

	// A raw segment of a dotted id is not a party.
	if _, ok := FriendChannelPeer(FriendChannelID("a.b", "c"), "a"); ok {
		t.Error("non-party recovered a peer from a dotted id")
	}
}

func TestTimeIDOrdering(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := TimeID(t0)
	b := TimeID(t0.Add(time.Microsecond))
	if len(a) != len(b) {
		t.Fatalf("ids must be fixed width: %d vs %d", len(a), len(b))
	}
	if !(a < b) {
		t.Fatalf("lexicographic order must match time order: %q !< %q", a, b)
	}
	if ParseTimeID(a) != t0.UnixMicro() {
		t.Fatalf("ParseTimeID(%q) = %d, want %d", a, ParseTimeID(a), t0.UnixMicro())
	}
}
