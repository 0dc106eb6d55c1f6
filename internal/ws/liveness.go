package ws

import (
	"context"
	"log"
	"time"

	"backcoffee-chat/internal/observability"
)

// Monitor probes every open connection on a fixed interval and closes those
// that did not answer the previous probe.
type Monitor struct {
	registry *Registry
	interval time.Duration
}

func NewMonitor(registry *Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{registry: registry, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one heartbeat cycle and returns the evicted connection ids.
func (m *Monitor) Sweep() []string {
	var evicted []string
	for _, conn := range m.registry.Connections() {
		alive, tracked := m.registry.takeAlive(conn.ID())
		if !tracked {
			continue
		}
		if !alive {
			m.evict(conn)
			evicted = append(evicted, conn.ID())
			continue
		}
		if err := conn.Ping(); err != nil {
			log.Printf("ws ping failed conn_id=%s: %v", conn.ID(), err)
		}
	}
	return evicted
}

func (m *Monitor) evict(conn Conn) {
	info, _ := m.registry.Info(conn.ID())
	userID, _ := m.registry.ResolveUserByConnection(conn.ID())
	_ = conn.Close()
	m.registry.Untrack(conn.ID())

	log.Printf("ws evicted conn_id=%s user_id=%s", conn.ID(), userID)
	observability.IncHeartbeatEviction()
	observability.IncWSEvent("chat", "ws_evicted")
	publishWSEvent(context.Background(), "ws_evicted", info, userID, "heartbeat timeout")
}
