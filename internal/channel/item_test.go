package channel

import (
	"testing"
	"time"

	"github.com/astrachat/internal/model"
)

func TestOnlineTracking(t *testing.T) {
	it := NewItem("g1", model.KindGroup, nil, nil)

	it.AddUser("a")
	it.AddUser("b")
	it.AddUser("a") // idempotent
	if got := it.OnlineCount(); got != 2 {
		t.Fatalf("OnlineCount = %d, want 2", got)
	}
	if !it.Online("a") || it.Online("c") {
		t.Fatal("Online membership wrong")
	}

	it.RemoveUser("a")
	if it.Online("a") {
		t.Fatal("removed user still online")
	}
	if got := it.OnlineCount(); got != 1 {
		t.Fatalf("OnlineCount after remove = %d, want 1", got)
	}
}

func TestBanLazyExpiry(t *testing.T) {
	it := NewItem("g1", model.KindGroup, nil, nil)

	future := model.TimeID(time.Now().Add(time.Hour))
	it.SetBan("a", future)
	banned, expiry := it.IsBanned("a")
	if !banned || expiry != future {
		t.Fatalf("IsBanned = %v, %q; want true, %q", banned, expiry, future)
	}

	// An expired entry is treated as not banned without deletion.
	past := model.TimeID(time.Now().Add(-time.Minute))
	it.SetBan("b", past)
	if banned, _ := it.IsBanned("b"); banned {
		t.Fatal("expired ban still reported active")
	}

	it.SetBan("a", "")
	if banned, _ := it.IsBanned("a"); banned {
		t.Fatal("lifted ban still reported active")
	}
}

func TestBansSeededFromStore(t *testing.T) {
	future := model.TimeID(time.Now().Add(time.Hour))
	it := NewItem("g1", model.KindGroup, nil, map[string]string{"a": future})
	if banned, _ := it.IsBanned("a"); !banned {
		t.Fatal("seeded ban not active")
	}
}
