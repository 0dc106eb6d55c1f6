package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcoffee-chat/internal/models"
)

func TestSweepEvictsAfterTwoMissedHeartbeats(t *testing.T) {
	f := newRelayFixture()
	a := f.connect("a1", "a1", models.RoleAdmin)
	x := f.connect("x", "ax", models.RoleAdmin)
	c := f.connect("c1", "u1", models.RoleCustomer)
	m := NewMonitor(f.registry, time.Minute)

	assert.Empty(t, m.Sweep())
	assert.Equal(t, 1, x.pings)
	f.registry.MarkAlive("a1")
	f.registry.MarkAlive("c1")

	evicted := m.Sweep()
	assert.Equal(t, []string{"x"}, evicted)
	assert.True(t, x.isClosed())
	assert.False(t, a.isClosed())
	assert.Equal(t, StateClosed, f.registry.State("x"))
	assert.Equal(t, []string{"a1"}, f.registry.ListByRole(models.RoleAdmin))

	f.dispatch(c, `{"type":"send_message","userId":"u1","chatCategory":"sales","body":"hola"}`)
	assert.Len(t, sentOf[NewMessage](a), 1)
	assert.Empty(t, x.all())
}

func TestSweepKeepsAnsweringConnections(t *testing.T) {
	f := newRelayFixture()
	conn := f.open("c1")
	m := NewMonitor(f.registry, time.Minute)

	for i := 0; i < 3; i++ {
		require.Empty(t, m.Sweep())
		f.registry.MarkAlive("c1")
	}
	assert.Equal(t, 3, conn.pings)
	assert.False(t, conn.isClosed())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newRelayFixture()
	m := NewMonitor(f.registry, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
