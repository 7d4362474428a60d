package jar

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portjar/internal/model"
)

func TestSubscribe(t *testing.T) {
	j := newTestJar(t)

	events, unsubscribe := j.Subscribe()
	defer unsubscribe()

	_, err := j.Reserve("web 8080")
	require.NoError(t, err)
	require.NoError(t, j.Drop("web 8080"))

	assert.Equal(t, Event{Kind: EventReserved, Reservation: model.Reservation{Service: "web", Port: 8080}}, <-events)
	assert.Equal(t, Event{Kind: EventDropped, Reservation: model.Reservation{Service: "web", Port: 8080}}, <-events)
}

func TestSubscribe_FailedMutationsAreSilent(t *testing.T) {
	j := newTestJar(t)
	_, err := j.Reserve("web 8080")
	require.NoError(t, err)

	events, unsubscribe := j.Subscribe()
	defer unsubscribe()

	_, err = j.Reserve("api 8080")
	require.Error(t, err)
	require.Error(t, j.Drop("nope 1"))

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	j := newTestJar(t)

	events, unsubscribe := j.Subscribe()
	unsubscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok, "channel should be closed")

	// Mutations after unsubscribing must not panic on the closed channel.
	_, err := j.Reserve("web 8080")
	assert.NoError(t, err)
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	j := newTestJar(t, WithRange(5000, 5000+subscriberBuffer*2))

	events, unsubscribe := j.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		_, err := j.Reserve("svc 0")
		require.NoError(t, err)
	}
	assert.Len(t, events, subscriberBuffer)
}

// TestSubscribe_ConcurrentOrder checks that, per port, reserved and dropped
// events alternate even when several goroutines mutate the jar at once.
func TestSubscribe_ConcurrentOrder(t *testing.T) {
	j := newTestJar(t)
	events, unsubscribe := j.Subscribe()
	defer unsubscribe()

	const workers, rounds = 3, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		line := fmt.Sprintf("svc%d %d", w, 6000+w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := j.Reserve(line)
				assert.NoError(t, err)
				assert.NoError(t, j.Drop(line))
			}
		}()
	}
	wg.Wait()

	last := make(map[int]EventKind)
	for n := 0; n < workers*rounds*2; n++ {
		ev := <-events
		want := EventReserved
		if last[ev.Reservation.Port] == EventReserved {
			want = EventDropped
		}
		assert.Equal(t, want, ev.Kind, "port %d event %d", ev.Reservation.Port, n)
		last[ev.Reservation.Port] = ev.Kind
	}
}
