package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backcoffee-chat/internal/observability"
)

const wsRoutingKey = "ws_events.chat"

func newConnID() string {
	return "ws_" + uuid.NewString()
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, userID, reason string) {
	var duration int64
	if !info.ConnectedAt.IsZero() {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "chat",
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   userID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
