package bus

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/realtime"
)

func TestEventCodecRoundTripsGroupEvent(t *testing.T) {
	doc, group := uuid.New(), uuid.New()
	ev := realtime.NewEvent(realtime.EventGroupCompleted, doc, doc, map[string]any{"method_key": "paragraph"})
	ev.GroupID = &group

	raw, err := encodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != ev.Type || got.GroupID == nil || *got.GroupID != group || got.Data["method_key"] != "paragraph" {
		t.Fatalf("decoded %+v", got)
	}
}

func TestEventCodecRejectsUntypedEvents(t *testing.T) {
	if _, err := encodeEvent(realtime.Event{}); err == nil {
		t.Fatalf("encode should reject an event without type")
	}
	if _, err := decodeEvent([]byte(`{"document_id":"` + uuid.NewString() + `"}`)); err == nil {
		t.Fatalf("decode should reject an event without type")
	}
	if _, err := decodeEvent([]byte(`not json`)); err == nil {
		t.Fatalf("decode should reject invalid json")
	}
}

func TestNewRedisBusRequiresAddress(t *testing.T) {
	if _, err := NewRedisBus(nil, RedisConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}
