package events_test

import (
	"testing"
	"time"

	"github.com/nuulab/dicomflow/pkg/events"
)

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Publish(events.KindJobStarted, "job-1")

	select {
	case ev := <-ch:
		if ev.Kind != events.KindJobStarted {
			t.Errorf("expected kind %s, got %s", events.KindJobStarted, ev.Kind)
		}
		if ev.Payload != "job-1" {
			t.Errorf("expected payload job-1, got %v", ev.Payload)
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusFanOutToMultipleSubscribers(t *testing.T) {
	bus := events.NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub2()

	bus.Publish(events.KindJobFinished, nil)

	for _, ch := range []<-chan events.Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	unsubscribe()

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestBusPublishDropsOnFullBuffer(t *testing.T) {
	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	bus.Publish(events.KindProgressJobDetail, 1)
	bus.Publish(events.KindProgressJobDetail, 2)

	select {
	case ev := <-ch:
		if ev.Payload != 1 {
			t.Errorf("expected first event to survive, got %v", ev.Payload)
		}
	default:
		t.Fatal("expected the first buffered event to be available")
	}

	select {
	case <-ch:
		t.Fatal("expected second event to have been dropped, not queued")
	default:
	}
}

func TestBusSubscriberCount(t *testing.T) {
	bus := events.NewBus()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	_, unsubscribe := bus.Subscribe(1)
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	unsubscribe()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", bus.SubscriberCount())
	}
}
