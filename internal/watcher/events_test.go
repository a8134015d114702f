package watcher

import (
	"testing"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4)
	ch1, cancel1 := bus.Subscribe()
	ch2, cancel2 := bus.Subscribe()
	defer cancel1()
	defer cancel2()

	bus.Publish(Event{Kind: EventFileDetected, Filename: "a.pdf"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		e := <-ch
		if e.Kind != EventFileDetected || e.Filename != "a.pdf" {
			t.Errorf("subscriber %d got %+v", i, e)
		}
		if e.Time.IsZero() {
			t.Errorf("subscriber %d: event time not set", i)
		}
	}
}

func TestBus_FullBufferDrops(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: EventFileDetected, Filename: "1"})
	bus.Publish(Event{Kind: EventFileDetected, Filename: "2"})

	if bus.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", bus.Dropped())
	}
	if e := <-ch; e.Filename != "1" {
		t.Errorf("expected first event kept, got %s", e.Filename)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	bus.Publish(Event{Kind: EventStateChanged}) // must not panic
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()
	if _, ok := <-ch; ok {
		t.Error("Close should close subscriber channels")
	}

	late, _ := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after Close yields a closed channel")
	}
}

func TestEventKind_String(t *testing.T) {
	kinds := map[EventKind]string{
		EventStateChanged: "stateChanged",
		EventFileDetected: "fileDetected",
		EventFileUploaded: "fileUploaded",
		EventUploadFailed: "uploadFailed",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %s, want %s", k, k.String(), want)
		}
	}
}
