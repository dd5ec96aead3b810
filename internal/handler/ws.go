package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/astrachat/internal/logger"
	"github.com/astrachat/internal/ws"
)

// AuthFunc resolves the authenticated user of an upgrade request. Credential
// validation happens outside this core; a gateway or session middleware
// supplies the implementation.
type AuthFunc func(r *http.Request) (userID string, ok bool)

type WSHandler struct {
	hub            *ws.Hub
	auth           AuthFunc
	allowedOrigins string
}

// NewWSHandler creates the WebSocket entry point. allowedOrigins works like
// CORS ("*" or a comma-separated list).
func NewWSHandler(hub *ws.Hub, auth AuthFunc, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, auth: auth, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and registers it as one of the user's
// devices. Clients pass a stable deviceID query param to keep their replay
// cursor; a missing one gets a fresh id (full lookback replay).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.auth(r)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	deviceID := r.URL.Query().Get("deviceID")
	if deviceID == "" {
		deviceID = uuid.New().String()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID, deviceID)
	if err := h.hub.Connect(r.Context(), userID, deviceID, client); err != nil {
		logger.Errorf("ws connect user=%s device=%s: %v", userID, deviceID, err)
		cancel()
		conn.Close()
		return
	}
	client.Start(ctx, cancel)
}
