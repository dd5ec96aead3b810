// Package pipeline runs every outgoing chat message through two pluggable
// stages before it is persisted and broadcast: a read-only Checker
// (validation and authorization) and a Modifier (in-place payload
// transformation). Stages are dispatched by message type; unrecognized
// types fall through to a no-op handler unless an allow-list is configured.
package pipeline

import (
	"context"

	"github.com/astrachat/internal/channel"
	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store"
)

// Result is the outcome of a pipeline stage. Anything but OK aborts the
// send; the reason is surfaced to the sender only.
type Result int

const (
	OK Result = iota
	LimitExceeded
	NotExist
	NoPermission
	NotAllowedType
	Unknown
)

// Reason is the user-facing failure text, embedded in the "failed" notice
// returned to the sender.
func (r Result) Reason() string {
	switch r {
	case OK:
		return "OK"
	case LimitExceeded:
		return "size or duration exceeds the limit"
	case NotExist:
		return "target does not exist or has expired"
	case NoPermission:
		return "no permission"
	case NotAllowedType:
		return "message type not allowed"
	default:
		return "unknown error"
	}
}

// Limits are the content bounds enforced by the checker stage.
type Limits struct {
	// TextMaxRunes bounds plain text; TextMaxRunesEncrypted applies when the
	// encrypt flag is set (ciphertext inflates content).
	TextMaxRunes          int
	TextMaxRunesEncrypted int
	// ImageMaxEncoded bounds the base64 form, ImageMaxBytes the decoded one.
	ImageMaxEncoded int
	ImageMaxBytes   int
	AudioMaxSeconds float64
}

// Env is the per-send context handed to every stage.
type Env struct {
	UserID  string
	Channel *channel.Item
}

// Handler is one message type's pair of stages. Check must not mutate the
// message; Modify may rewrite payload and type in place.
type Handler interface {
	Check(ctx context.Context, env Env, msg *model.ChatMessage) Result
	Modify(ctx context.Context, env Env, msg *model.ChatMessage) Result
}

// nopHandler passes unrecognized-but-allowed types straight through.
type nopHandler struct{}

func (nopHandler) Check(context.Context, Env, *model.ChatMessage) Result  { return OK }
func (nopHandler) Modify(context.Context, Env, *model.ChatMessage) Result { return OK }

type Pipeline struct {
	handlers map[string]Handler
	allowed  map[string]struct{} // nil: any type passes
	limits   Limits
}

// New builds a pipeline with the standard handlers registered. allowedTypes
// nil or empty disables the allow-list.
func New(limits Limits, membership store.Membership, blobs store.BlobStore, allowedTypes []string) *Pipeline {
	p := &Pipeline{
		handlers: make(map[string]Handler),
		limits:   limits,
	}
	if len(allowedTypes) > 0 {
		p.allowed = make(map[string]struct{}, len(allowedTypes))
		for _, t := range allowedTypes {
			p.allowed[t] = struct{}{}
		}
	}
	p.Register(model.TypeText, textHandler{limits})
	p.Register(model.TypeImage, imageHandler{limits})
	p.Register(model.TypeRevoke, revokeHandler{membership, blobs})
	p.Register(model.TypeForwardFile, forwardFileHandler{blobs})
	p.Register(model.TypeAudio, audioHandler{blobs, limits})
	return p
}

// Register installs or replaces the handler for a message type.
func (p *Pipeline) Register(msgType string, h Handler) {
	p.handlers[msgType] = h
}

// Run injects default meta keys, then runs Check and Modify for the
// message's type. The first non-OK result wins.
func (p *Pipeline) Run(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	if msg.Payload.Meta == nil {
		msg.Payload.Meta = make(map[string]any, 2)
	}
	if _, ok := msg.Payload.Meta["at"]; !ok {
		msg.Payload.Meta["at"] = []string{}
	}
	if _, ok := msg.Payload.Meta["encrypt"]; !ok {
		msg.Payload.Meta["encrypt"] = false
	}

	if p.allowed != nil {
		if _, ok := p.allowed[msg.Type]; !ok {
			return NotAllowedType
		}
	}

	h, ok := p.handlers[msg.Type]
	if !ok {
		h = nopHandler{}
	}
	if res := h.Check(ctx, env, msg); res != OK {
		return res
	}
	return h.Modify(ctx, env, msg)
}
