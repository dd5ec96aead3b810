package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/astrachat/internal/channel"
	"github.com/astrachat/internal/model"
	"github.com/astrachat/internal/store/memory"
)

var testLimits = Limits{
	TextMaxRunes:          100,
	TextMaxRunesEncrypted: 400,
	ImageMaxEncoded:       1 << 20,
	ImageMaxBytes:         512 << 10,
	AudioMaxSeconds:       60,
}

func newEnv(t *testing.T, kind model.ChannelKind) (Env, *memory.Client, *Pipeline) {
	t.Helper()
	mem := memory.New()
	item := channel.NewItem("ch1", kind, mem, nil)
	p := New(testLimits, mem, mem, nil)
	return Env{UserID: "alice", Channel: item}, mem, p
}

func chat(msgType, content string) *model.ChatMessage {
	return &model.ChatMessage{
		Type:    msgType,
		Group:   "ch1",
		Payload: model.MessagePayload{Content: content},
	}
}

func TestTextBounds(t *testing.T) {
	env, _, p := newEnv(t, model.KindGroup)
	ctx := context.Background()

	if res := p.Run(ctx, env, chat(model.TypeText, "hi")); res != OK {
		t.Fatalf("short text: got %v", res)
	}
	if res := p.Run(ctx, env, chat(model.TypeText, "")); res != LimitExceeded {
		t.Fatalf("empty text: got %v, want LimitExceeded", res)
	}
	long := strings.Repeat("x", 200)
	if res := p.Run(ctx, env, chat(model.TypeText, long)); res != LimitExceeded {
		t.Fatalf("long text: got %v, want LimitExceeded", res)
	}

	// The encrypted flag loosens the bound.
	msg := chat(model.TypeText, long)
	msg.Payload.Meta = map[string]any{"encrypt": true}
	if res := p.Run(ctx, env, msg); res != OK {
		t.Fatalf("long encrypted text: got %v, want OK", res)
	}
}

func TestDefaultMetaInjected(t *testing.T) {
	env, _, p := newEnv(t, model.KindGroup)
	msg := chat(model.TypeText, "hi")
	if res := p.Run(context.Background(), env, msg); res != OK {
		t.Fatal(res.Reason())
	}
	if _, ok := msg.Payload.Meta["at"]; !ok {
		t.Error("missing default at list")
	}
	if v, ok := msg.Payload.Meta["encrypt"].(bool); !ok || v {
		t.Error("missing default encrypt=false")
	}
}

func TestImageCheck(t *testing.T) {
	env, _, p := newEnv(t, model.KindGroup)
	ctx := context.Background()

	good := base64.StdEncoding.EncodeToString([]byte("tiny image bytes"))
	if res := p.Run(ctx, env, chat(model.TypeImage, good)); res != OK {
		t.Fatalf("valid image: got %v", res)
	}
	if res := p.Run(ctx, env, chat(model.TypeImage, "data:image/png;base64,"+good)); res != OK {
		t.Fatalf("data URI image: got %v", res)
	}
	if res := p.Run(ctx, env, chat(model.TypeImage, "%%% not base64")); res != Unknown {
		t.Fatalf("bad base64: got %v, want Unknown", res)
	}

	// Encrypted images skip the decode step entirely.
	msg := chat(model.TypeImage, "%%% not base64")
	msg.Payload.Meta = map[string]any{"encrypt": true}
	if res := p.Run(ctx, env, msg); res != OK {
		t.Fatalf("encrypted image: got %v, want OK", res)
	}

	huge := strings.Repeat("A", testLimits.ImageMaxEncoded+1)
	if res := p.Run(ctx, env, chat(model.TypeImage, huge)); res != LimitExceeded {
		t.Fatalf("oversize encoded image: got %v, want LimitExceeded", res)
	}
}

func TestRevokePermissions(t *testing.T) {
	env, mem, p := newEnv(t, model.KindGroup)
	ctx := context.Background()
	mem.PutChannel("ch1", "owner", []string{"admin"}, []string{"owner", "admin", "alice", "bob"})

	seed := func(timeID, sender string) {
		_ = mem.Append(ctx, "ch1", model.StoredMessage{
			Time: timeID, Type: model.TypeText, SenderID: sender,
			Payload: model.MessagePayload{Content: "hello"},
		})
	}
	seed("1000", "alice")
	seed("1001", "bob")
	seed("1002", "owner")

	run := func(actor, target string) Result {
		e := env
		e.UserID = actor
		return p.Run(ctx, e, chat(model.TypeRevoke, target))
	}

	if res := run("alice", "9999"); res != NotExist {
		t.Errorf("missing target: got %v, want NotExist", res)
	}
	if res := run("bob", "1000"); res != NoPermission {
		t.Errorf("bystander revoke: got %v, want NoPermission", res)
	}
	if res := run("admin", "1002"); res != NoPermission {
		t.Errorf("admin revoking owner: got %v, want NoPermission", res)
	}
	if res := run("admin", "1001"); res != OK {
		t.Errorf("admin revoking member: got %v, want OK", res)
	}
	if res := run("owner", "1000"); res != OK {
		t.Errorf("owner revoke: got %v, want OK", res)
	}
}

func TestRevokeRewritesStoredRecord(t *testing.T) {
	env, mem, p := newEnv(t, model.KindGroup)
	ctx := context.Background()
	mem.PutChannel("ch1", "owner", nil, []string{"owner", "alice"})
	mem.PutUser("alice", "Alice", "v1")

	_ = mem.Append(ctx, "ch1", model.StoredMessage{
		Time: "2000", Type: model.TypeText, SenderID: "alice",
		Payload: model.MessagePayload{Content: "oops"},
	})

	msg := chat(model.TypeRevoke, "2000")
	if res := p.Run(ctx, env, msg); res != OK {
		t.Fatalf("author revoke: got %v", res.Reason())
	}

	rec, err := mem.Get(ctx, "ch1", "2000")
	if err != nil {
		t.Fatalf("record vanished: %v", err)
	}
	if rec.Type != model.TypeRevoke {
		t.Errorf("stored type = %q, want %q", rec.Type, model.TypeRevoke)
	}
	if rec.Time != "2000" {
		t.Errorf("time id changed to %q", rec.Time)
	}
	if !strings.Contains(rec.Payload.Content, "Alice revoked") {
		t.Errorf("notice text = %q", rec.Payload.Content)
	}
	if msg.Type != model.TypeRevoke || msg.Payload.Meta["time"] != "2000" {
		t.Errorf("outgoing message not rewritten: %+v", msg)
	}
}

func TestRevokeFileReleasesBlobRef(t *testing.T) {
	env, mem, p := newEnv(t, model.KindGroup)
	ctx := context.Background()
	mem.PutChannel("ch1", "owner", nil, []string{"owner", "alice"})
	mem.PutBlob(&model.Blob{Hash: "h1", Name: "doc.pdf", Data: []byte("x")})
	_ = mem.IncRef(ctx, "h1", "ch1")

	_ = mem.Append(ctx, "ch1", model.StoredMessage{
		Time: "3000", Type: model.TypeFile, SenderID: "alice",
		Payload: model.MessagePayload{Name: "doc.pdf", Content: "h1"},
	})

	if res := p.Run(ctx, env, chat(model.TypeRevoke, "3000")); res != OK {
		t.Fatalf("revoke: %v", res.Reason())
	}
	if refs := mem.BlobRefs("h1", "ch1"); refs != 0 {
		t.Errorf("blob refs = %d, want 0", refs)
	}
}

func TestForwardFile(t *testing.T) {
	env, mem, p := newEnv(t, model.KindGroup)
	ctx := context.Background()

	if res := p.Run(ctx, env, chat(model.TypeForwardFile, "missing")); res != NotExist {
		t.Fatalf("missing blob: got %v, want NotExist", res)
	}

	mem.PutBlob(&model.Blob{Hash: "h2", Name: "notes.txt", Data: []byte("hello world")})
	msg := chat(model.TypeForwardFile, "h2")
	if res := p.Run(ctx, env, msg); res != OK {
		t.Fatalf("forward: %v", res.Reason())
	}
	if msg.Type != model.TypeFile {
		t.Errorf("type = %q, want file", msg.Type)
	}
	if msg.Payload.Name != "notes.txt" || msg.Payload.Size != 11 {
		t.Errorf("metadata not stamped: %+v", msg.Payload)
	}
	if refs := mem.BlobRefs("h2", "ch1"); refs != 1 {
		t.Errorf("blob refs = %d, want 1", refs)
	}
}

// buildWAV produces a one-second mono 16-bit PCM clip with a loud first half
// and a silent second half.
func buildWAV(t *testing.T) []byte {
	t.Helper()
	const rate = 8000
	frames := rate
	pcm := make([]byte, frames*2)
	for i := 0; i < frames/2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(20000)))
	}

	var b []byte
	b = append(b, "RIFF"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(36+len(pcm)))
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 1) // PCM
	b = binary.LittleEndian.AppendUint16(b, 1) // mono
	b = binary.LittleEndian.AppendUint32(b, rate)
	b = binary.LittleEndian.AppendUint32(b, rate*2)
	b = binary.LittleEndian.AppendUint16(b, 2)  // block align
	b = binary.LittleEndian.AppendUint16(b, 16) // bits
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(pcm)))
	b = append(b, pcm...)
	return b
}

func TestAudioWaveform(t *testing.T) {
	env, mem, p := newEnv(t, model.KindGroup)
	ctx := context.Background()
	mem.PutBlob(&model.Blob{Hash: "clip", Name: "voice.wav", Data: buildWAV(t)})

	msg := chat(model.TypeAudio, "clip")
	if res := p.Run(ctx, env, msg); res != OK {
		t.Fatalf("audio: %v", res.Reason())
	}

	seconds, ok := msg.Payload.Meta["length"].(float64)
	if !ok || seconds != 1.0 {
		t.Errorf("length = %v, want 1.0", msg.Payload.Meta["length"])
	}
	volume, ok := msg.Payload.Meta["volume"].([]int)
	if !ok || len(volume) != 3 { // min(50, 1+2) chunks
		t.Fatalf("volume = %v, want 3 chunks", msg.Payload.Meta["volume"])
	}
	if volume[0] != 100 {
		t.Errorf("loud chunk = %d, want 100", volume[0])
	}
	if volume[2] != 0 {
		t.Errorf("silent chunk = %d, want 0", volume[2])
	}
	if refs := mem.BlobRefs("clip", "ch1"); refs != 1 {
		t.Errorf("blob refs = %d, want 1", refs)
	}
}

func TestAudioDecodeFailureIsSoft(t *testing.T) {
	env, mem, p := newEnv(t, model.KindGroup)
	mem.PutBlob(&model.Blob{Hash: "junk", Name: "x.wav", Data: []byte("not a wav")})
	if res := p.Run(context.Background(), env, chat(model.TypeAudio, "junk")); res != Unknown {
		t.Fatalf("corrupt clip: got %v, want Unknown", res)
	}
}

func TestAllowList(t *testing.T) {
	mem := memory.New()
	item := channel.NewItem("ch1", model.KindGroup, mem, nil)
	p := New(testLimits, mem, mem, []string{model.TypeText})
	env := Env{UserID: "alice", Channel: item}

	if res := p.Run(context.Background(), env, chat("sticker", "id42")); res != NotAllowedType {
		t.Fatalf("disallowed type: got %v, want NotAllowedType", res)
	}

	// Without an allow-list, unknown types pass straight through.
	open := New(testLimits, mem, mem, nil)
	if res := open.Run(context.Background(), env, chat("sticker", "id42")); res != OK {
		t.Fatalf("unknown type without allow-list: got %v, want OK", res)
	}
}
