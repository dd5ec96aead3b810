package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/astrachat/internal/logger"
	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store"
)

// textHandler bounds content length. Encrypted payloads get the longer
// allowance since ciphertext inflates the original text.
type textHandler struct {
	limits Limits
}

func (h textHandler) Check(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	max := h.limits.TextMaxRunes
	if msg.Payload.Encrypted() {
		max = h.limits.TextMaxRunesEncrypted
	}
	n := utf8.RuneCountInString(msg.Payload.Content)
	if n == 0 || n > max {
		return LimitExceeded
	}
	return OK
}

func (h textHandler) Modify(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	return OK
}

// imageHandler bounds the encoded size and, for unencrypted payloads,
// verifies the base64 body and bounds the decoded byte size.
type imageHandler struct {
	limits Limits
}

func (h imageHandler) Check(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	content := msg.Payload.Content
	if len(content) == 0 || len(content) > h.limits.ImageMaxEncoded {
		return LimitExceeded
	}
	if msg.Payload.Encrypted() {
		return OK
	}
	// Clients may send a data URI; the body starts after the comma.
	if i := strings.IndexByte(content, ','); i >= 0 && strings.HasPrefix(content, "data:") {
		content = content[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return Unknown
	}
	if len(raw) > h.limits.ImageMaxBytes {
		return LimitExceeded
	}
	return OK
}

func (h imageHandler) Modify(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	return OK
}

// revokeHandler validates and applies message revocation. The target time id
// comes in payload.content. Permitted actors: the original sender, the
// channel owner, or an admin acting on a non-owner's message.
type revokeHandler struct {
	membership store.Membership
	blobs      store.BlobStore
}

func (h revokeHandler) Check(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	target, err := env.Channel.Log.Get(ctx, env.Channel.ID, msg.Payload.Content)
	if errors.Is(err, store.ErrNotFound) {
		return NotExist
	}
	if err != nil {
		logger.Errorf("pipeline: revoke lookup channel=%s time=%s: %v", env.Channel.ID, msg.Payload.Content, err)
		return Unknown
	}
	if target.SenderID == env.UserID {
		return OK
	}
	if env.Channel.Kind != model.KindGroup {
		// Friend channels have no owner or admins.
		return NoPermission
	}
	owner, err := h.membership.GetChannelOwner(ctx, env.Channel.ID)
	if err != nil {
		return Unknown
	}
	if env.UserID == owner {
		return OK
	}
	admins, err := h.membership.GetChannelAdmins(ctx, env.Channel.ID)
	if err != nil {
		return Unknown
	}
	for _, a := range admins {
		if a == env.UserID && target.SenderID != owner {
			return OK
		}
	}
	return NoPermission
}

func (h revokeHandler) Modify(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	targetTime := msg.Payload.Content
	target, err := env.Channel.Log.Get(ctx, env.Channel.ID, targetTime)
	if err != nil {
		return NotExist
	}

	// File-backed targets release their per-channel blob reference.
	if target.Type == model.TypeFile || target.Type == model.TypeAudio {
		if err := h.blobs.DecRef(ctx, target.Payload.Content, env.Channel.ID); err != nil {
			logger.Errorf("pipeline: revoke decref blob=%s channel=%s: %v", target.Payload.Content, env.Channel.ID, err)
		}
	}

	name, err := h.membership.GetUserName(ctx, env.UserID)
	if err != nil || name == "" {
		name = env.UserID
	}
	whose := "a message"
	if target.SenderID != env.UserID {
		whose = "a member's message"
	}
	msg.Type = model.TypeRevoke
	msg.Payload = model.MessagePayload{
		Content: fmt.Sprintf("%s revoked %s", name, whose),
		Meta:    map[string]any{"time": targetTime},
	}

	// The stored record is rewritten in place; its time id never changes.
	if err := env.Channel.Log.Update(ctx, env.Channel.ID, targetTime, msg.Type, msg.Payload); err != nil {
		logger.Errorf("pipeline: revoke rewrite channel=%s time=%s: %v", env.Channel.ID, targetTime, err)
		return Unknown
	}
	return OK
}

// forwardFileHandler turns a content-hash reference into a file message:
// resolves the blob, stamps name and size, and takes a channel reference.
type forwardFileHandler struct {
	blobs store.BlobStore
}

func (h forwardFileHandler) Check(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	return OK
}

func (h forwardFileHandler) Modify(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	hash := msg.Payload.Content
	blob, err := h.blobs.Resolve(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return NotExist
	}
	if err != nil {
		return Unknown
	}
	if err := h.blobs.IncRef(ctx, hash, env.Channel.ID); err != nil {
		logger.Errorf("pipeline: forward incref blob=%s channel=%s: %v", hash, env.Channel.ID, err)
	}
	msg.Type = model.TypeFile
	msg.Payload.Name = blob.Name
	msg.Payload.Size = int64(len(blob.Data))
	msg.Payload.Content = hash
	return OK
}

// audioHandler resolves a voice-clip blob and attaches a normalized
// chunk-volume series plus duration to meta for waveform rendering.
type audioHandler struct {
	blobs  store.BlobStore
	limits Limits
}

func (h audioHandler) Check(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	return OK
}

func (h audioHandler) Modify(ctx context.Context, env Env, msg *model.ChatMessage) Result {
	hash := msg.Payload.Content
	blob, err := h.blobs.Resolve(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return NotExist
	}
	if err != nil {
		return Unknown
	}

	seconds, volume, err := analyzeWAV(blob.Data)
	if err != nil {
		// Corrupt or unsupported clip is a soft failure, not a hard error.
		logger.Errorf("pipeline: audio decode blob=%s: %v", hash, err)
		return Unknown
	}
	if h.limits.AudioMaxSeconds > 0 && seconds > h.limits.AudioMaxSeconds {
		return LimitExceeded
	}

	if err := h.blobs.IncRef(ctx, hash, env.Channel.ID); err != nil {
		logger.Errorf("pipeline: audio incref blob=%s channel=%s: %v", hash, env.Channel.ID, err)
	}
	msg.Payload.Name = blob.Name
	msg.Payload.Size = int64(len(blob.Data))
	msg.Payload.Meta["length"] = seconds
	msg.Payload.Meta["volume"] = volume
	return OK
}
