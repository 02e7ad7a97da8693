package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/realtime"
)

func TestMemoryBusDeliversToEverySubscriber(t *testing.T) {
	b := NewMemoryBus(logger.Nop())
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got1 := make(chan realtime.Event, 1)
	got2 := make(chan realtime.Event, 1)
	if err := b.StartForwarder(ctx, func(ev realtime.Event) { got1 <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.StartForwarder(ctx, func(ev realtime.Event) { got2 <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	doc := uuid.New()
	if err := b.Publish(ctx, realtime.NewEvent(realtime.EventGroupCompleted, doc, doc, nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for i, ch := range []chan realtime.Event{got1, got2} {
		select {
		case ev := <-ch:
			if ev.Type != realtime.EventGroupCompleted || ev.DocumentID != doc {
				t.Fatalf("subscriber %d got %+v", i, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestMemoryBusRejectsAfterClose(t *testing.T) {
	b := NewMemoryBus(logger.Nop())
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Publish(context.Background(), realtime.Event{Type: realtime.EventVersionCreated}); err == nil {
		t.Fatalf("publish on a closed bus should fail")
	}
	if err := b.StartForwarder(context.Background(), func(realtime.Event) {}); err == nil {
		t.Fatalf("subscribe on a closed bus should fail")
	}
}
