package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chatlist.", 10)
	defer unsub()

	if n := b.Publish(NewEvent(KindSnapshot, "test")); n != 1 {
		t.Errorf("Publish delivered to %d subscribers, want 1", n)
	}

	select {
	case evt := <-ch:
		if evt.Kind != KindSnapshot {
			t.Errorf("got kind %q, want %s", evt.Kind, KindSnapshot)
		}
		if evt.Timestamp.IsZero() {
			t.Error("NewEvent left Timestamp zero")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged})
	b.Publish(Event{Kind: KindRosterSynced})

	select {
	case evt := <-ch:
		if evt.Kind != KindRosterSynced {
			t.Errorf("got kind %q, want %s", evt.Kind, KindRosterSynced)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub() // second call is harmless

	b.Publish(Event{Kind: KindSignedOut})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	if n := b.Publish(Event{Kind: "x"}); n != 0 {
		t.Errorf("nil bus delivered %d", n)
	}
}
