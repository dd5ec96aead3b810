// Package ratelimit provides a sliding-window call throttle keyed by
// (operation, identity). Identity is an explicit tagged value supplied by the
// call site: an IP address before authentication, a user id after.
package ratelimit

import (
	"sync"
	"time"
)

// Unlimited disables limiting for an operation when passed as max.
const Unlimited = -1

type Kind int

const (
	KindIP Kind = iota
	KindUser
)

// Identity names the caller being throttled.
type Identity struct {
	Kind  Kind
	Value string
}

// IP tags an identity as a remote address (pre-authentication call sites).
func IP(addr string) Identity { return Identity{Kind: KindIP, Value: addr} }

// User tags an identity as a user id (post-authentication call sites).
func User(id string) Identity { return Identity{Kind: KindUser, Value: id} }

func (id Identity) key() string {
	if id.Kind == KindIP {
		return "ip:" + id.Value
	}
	return "u:" + id.Value
}

// Limiter keeps a FIFO of call timestamps per (operation, identity).
// Entries older than the window are evicted from the front on every call,
// so a window never holds stale timestamps.
type Limiter struct {
	mu    sync.Mutex
	calls map[string][]time.Time

	// now is replaceable in tests.
	now func() time.Time
}

func New() *Limiter {
	return &Limiter{calls: make(map[string][]time.Time), now: time.Now}
}

// Allow records a call against (op, id) and reports whether it may proceed.
// A call is rejected when max calls already happened within the last
// windowSec seconds. max == Unlimited always allows.
func (l *Limiter) Allow(op string, id Identity, max, windowSec int) bool {
	if max == Unlimited {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := op + "|" + id.key()
	now := l.now()
	cutoff := now.Add(-time.Duration(windowSec) * time.Second)

	queue := l.calls[key]
	i := 0
	for i < len(queue) && !queue[i].After(cutoff) {
		i++
	}
	queue = queue[i:]

	if len(queue) >= max {
		l.calls[key] = queue
		return false
	}
	l.calls[key] = append(queue, now)
	return true
}
