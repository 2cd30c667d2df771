package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Event{Type: TypeCheckedIn, RegisterNumber: "23127001"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			require.Equal(t, TypeCheckedIn, evt.Type)
			require.Equal(t, "23127001", evt.RegisterNumber)
			require.False(t, evt.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusDropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus(1, nil)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Type: TypeCheckedIn})
	bus.Publish(Event{Type: TypeCheckedOut})

	evt := <-ch
	require.Equal(t, TypeCheckedIn, evt.Type)
	select {
	case extra, ok := <-ch:
		if ok {
			t.Fatalf("unexpected buffered event %s", extra.Type)
		}
	default:
	}
}

func TestBusCancelRemovesSubscriber(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	_, cancel := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())
	cancel()
	require.Equal(t, 0, bus.SubscriberCount())
}

func TestBusCloseClosesChannels(t *testing.T) {
	bus := NewBus(4, nil)
	ch, _ := bus.Subscribe()
	bus.Close()

	_, ok := <-ch
	require.False(t, ok)
	// publishing after close is a no-op
	bus.Publish(Event{Type: TypeDeleted})
}
