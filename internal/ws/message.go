package ws

import (
	"github.com/astrachat/internal/model"
)

// Fixed user-facing notice texts.
const (
	noticeLoggedOut   = "logged in from another device"
	noticeRateLimited = "too many requests"
)

// notice builds a system message addressed at target (a channel id or a
// user id, depending on the notice type).
func notice(typ, subType, target, payload string) model.SysMessage {
	return model.SysMessage{
		Time:    model.NowID(),
		Type:    typ,
		SubType: subType,
		Target:  target,
		Payload: payload,
	}
}

// notificationWire converts a persisted notification record to its wire
// shape. The record's own type becomes the subtype so clients can route it.
func notificationWire(n model.Notification) model.SysMessage {
	return model.SysMessage{
		Time:    n.Time,
		Type:    model.SysNotification,
		SubType: n.Type,
		Target:  n.Target,
		State:   n.State,
		Payload: n.Payload,
	}
}
