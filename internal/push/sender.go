// Package push sends Web Push notifications to browsers of users with no
// connected device. Subscriptions are registered over HTTP and kept in
// memory; a dead endpoint is dropped on the first 404/410 from the push
// gateway.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/astrachat/internal/logger"
)

// Subscription is the browser-side push subscription.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Sender delivers Web Push messages with the service's VAPID credentials.
type Sender struct {
	keys    *VAPIDKeys
	subject string

	mu   sync.RWMutex
	subs map[string][]Subscription // userID -> subscriptions
}

// NewSender creates a sender. subject is the VAPID contact (mailto: or URL).
func NewSender(keys *VAPIDKeys, subject string) *Sender {
	if subject == "" {
		subject = "mailto:admin@astrachat.local"
	}
	return &Sender{
		keys:    keys,
		subject: subject,
		subs:    make(map[string][]Subscription),
	}
}

// Subscribe registers a subscription for userID, replacing any previous one
// with the same endpoint.
func (s *Sender) Subscribe(userID string, sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[userID]
	for i := range list {
		if list[i].Endpoint == sub.Endpoint {
			list[i] = sub
			return
		}
	}
	s.subs[userID] = append(list, sub)
}

// Unsubscribe removes the subscription with the given endpoint.
func (s *Sender) Unsubscribe(userID, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[userID]
	for i := range list {
		if list[i].Endpoint == endpoint {
			s.subs[userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.subs[userID]) == 0 {
		delete(s.subs, userID)
	}
}

// notifyPayload is what the service worker receives.
type notifyPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify pushes to every subscription of userID. Failures are logged, never
// surfaced: push is best-effort.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	s.mu.RLock()
	list := append([]Subscription(nil), s.subs[userID]...)
	s.mu.RUnlock()
	if len(list) == 0 {
		return
	}

	payload, err := json.Marshal(notifyPayload{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push notify marshal: %v", err)
		return
	}

	for _, sub := range list {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, &webpush.Options{
			Subscriber:      s.subject,
			VAPIDPublicKey:  s.keys.PublicKey,
			VAPIDPrivateKey: s.keys.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			logger.Errorf("push notify %s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			s.Unsubscribe(userID, sub.Endpoint)
		}
	}
}
