package model

import (
	"strconv"
	"time"
)

// Message types accepted over a chat connection. Types outside this file may
// still pass through the pipeline (they hit the default handler) unless the
// server is configured with an allow-list.
const (
	TypeText        = "text"
	TypeImage       = "image"
	TypeAudio       = "audio"
	TypeFile        = "file"
	TypeForwardFile = "forwardFile"
	TypeRevoke      = "revoke"
	TypeSystem      = "system"
)

// System notice types sent outside the chat stream.
const (
	SysLogout       = "logout"
	SysBan          = "ban"
	SysFail         = "fail"
	SysRateLimit    = "rateLimit"
	SysEchoBack     = "echoback"
	SysJoined       = "joined"
	SysLeft         = "left"
	SysDisband      = "disband"
	SysNotification = "notification"
)

// MessagePayload is the inner payload of a chat message. Meta carries
// type-specific side-channel data: "at" mention list, "encrypt" flag,
// revoke target time, audio volume series.
type MessagePayload struct {
	Name    string         `json:"name,omitempty"`
	Size    int64          `json:"size,omitempty"`
	Content string         `json:"content"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Encrypted reports whether the payload carries the opaque client-side
// encryption flag. The server performs no cryptography; the flag only
// loosens length checks (ciphertext inflates content).
func (p *MessagePayload) Encrypted() bool {
	v, ok := p.Meta["encrypt"].(bool)
	return ok && v
}

// ChatMessage is the wire shape exchanged over a chat socket, both directions.
// Time doubles as ordering key and idempotency key: it is strictly increasing
// per sender. For friend channels Group holds the peer's user id from the
// reader's point of view, never the derived virtual id.
type ChatMessage struct {
	Time      string         `json:"time"`
	Type      string         `json:"type"`
	Group     string         `json:"group"`
	GroupType ChannelKind    `json:"groupType"`
	SenderID  string         `json:"senderID,omitempty"`
	SenderKey string         `json:"senderKey,omitempty"`
	Echo      any            `json:"echo,omitempty"`
	Payload   MessagePayload `json:"payload"`
}

// SysMessage is the shape of system and administrative notices.
type SysMessage struct {
	Time     string `json:"time"`
	Type     string `json:"type"`
	SubType  string `json:"subType,omitempty"`
	Target   string `json:"target"`
	State    string `json:"state,omitempty"`
	SenderID string `json:"senderID,omitempty"`
	Payload  string `json:"payload"`
}

// StoredMessage is the persisted per-channel chat record, keyed by Time.
type StoredMessage struct {
	Time      string         `json:"time"`
	Type      string         `json:"type"`
	SenderID  string         `json:"senderID"`
	SenderKey string         `json:"senderKey,omitempty"`
	Payload   MessagePayload `json:"payload"`
}

// Blob is a content-addressed attachment resolved from the blob store.
type Blob struct {
	Hash string
	Name string
	Type string
	Data []byte
}

// TimeID renders t as a microsecond-epoch digit string. All ids produced
// until the year 2286 have the same width, so lexicographic comparison
// matches numeric comparison.
func TimeID(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

// NowID returns the current TimeID.
func NowID() string {
	return TimeID(time.Now())
}

// ParseTimeID is the inverse of TimeID. Malformed ids yield zero.
func ParseTimeID(id string) int64 {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
