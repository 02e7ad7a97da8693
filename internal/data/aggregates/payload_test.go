package aggregates

import (
	"math"
	"testing"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
)

func TestEncodePayloadReportsKeyAndType(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}
	loop := &node{Name: "a"}
	loop.Next = loop

	selfMap := map[string]any{}
	selfMap["self"] = selfMap

	selfSlice := make([]any, 1)
	selfSlice[0] = selfSlice

	cases := []struct {
		name     string
		in       any
		wantKey  string
		wantType string
	}{
		{"nan", map[string]any{"x": math.NaN()}, "content.x", "float64"},
		{"func", map[string]any{"cb": func() {}}, "content.cb", "func()"},
		{"invalid utf8 value", map[string]any{"text": "a\xffb"}, "content.text", "string"},
		{"invalid utf8 key", map[string]any{"a\xffb": 1}, "content.a\xffb", "map key string"},
		{"map cycle", selfMap, "content.self", "cycle"},
		{"slice cycle", selfSlice, "content[0]", "cycle"},
		{"pointer cycle", loop, "content.Next", "cycle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := EncodePayload("op", "content", tc.in)
			if !domainagg.IsCode(err, domainagg.CodeSerializationFailure) {
				t.Fatalf("expected serialization_failure, got raw=%s err=%v", raw, err)
			}
			details := domainagg.DetailsOf(err)
			if details["key"] != tc.wantKey || details["type"] != tc.wantType {
				t.Fatalf("details: %+v", details)
			}
		})
	}
}

func TestEncodePayloadAcceptsSharedButAcyclicValues(t *testing.T) {
	shared := map[string]any{"k": "v"}
	list := []any{1, 2}
	raw, err := EncodePayload("op", "content", map[string]any{
		"a": shared, "b": shared, "l1": list, "l2": list, "empty": list[:0], "text": "héllo",
	})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected encoded payload")
	}
	if raw, err := EncodePayload("op", "content", nil); raw != nil || err != nil {
		t.Fatalf("nil payload: %s %v", raw, err)
	}
}
