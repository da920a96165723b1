package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/adgen/internal/domain"
)

func TestBus_LateSubscriberSeesTerminalEvent(t *testing.T) {
	b := New()
	b.Publish(domain.Started("run1", 3))
	b.Publish(domain.Progress("run1", 1, 3, 0))
	b.Publish(domain.Finished("run1"))

	ch, unsub := b.Subscribe()
	defer unsub()

	select {
	case ev, ok := <-ch:
		require.True(t, ok)
		require.True(t, ev.Type == domain.EventTypeStarted || ev.Type == domain.EventTypeFinished)
	case <-time.After(time.Second):
		t.Fatal("expected a replayed event")
	}
}

func TestBus_DropsSlowSubscriber(t *testing.T) {
	b := New()
	b.bufferSize = 1
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(domain.Log("run1", "one"))
	b.Publish(domain.Log("run1", "two")) // buffer full, subscriber dropped

	_, ok := <-ch
	require.True(t, ok)
	_, ok = <-ch
	require.False(t, ok, "dropped subscriber's channel should be closed")
}
