package services

import (
	"context"

	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/realtime"
	"github.com/yungbote/docprov-backend/internal/realtime/bus"
)

// eventSink publishes lifecycle events after commit. Failures are logged and counted, never returned.
type eventSink struct {
	bus     bus.Bus
	metrics *observability.Metrics
	log     *logger.Logger
}

func (e eventSink) emit(ctx context.Context, ev realtime.Event) {
	if e.bus == nil {
		return
	}
	status := "ok"
	if err := e.bus.Publish(ctx, ev); err != nil {
		status = "error"
		if e.log != nil {
			e.log.Warn("event publish failed", "type", ev.Type, "document_id", ev.DocumentID, "error", err)
		}
	}
	e.metrics.IncEvent(ev.Type, status)
}
