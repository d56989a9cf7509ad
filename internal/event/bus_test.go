package event

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribePublishSync(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var got []Event
	unsub := b.Subscribe(SessionRegistered, func(e Event) {
		got = append(got, e)
	})
	defer unsub()

	b.PublishSync(Event{
		Type: SessionRegistered,
		Data: SessionRegisteredData{SessionID: "s1", ProjectPath: "/tmp/p"},
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != SessionRegistered {
		t.Errorf("unexpected event type: %s", got[0].Type)
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	b := NewBus()
	defer b.Close()

	count := 0
	unsub := b.Subscribe(SessionError, func(e Event) { count++ })
	defer unsub()

	b.PublishSync(Event{Type: SessionRegistered})
	b.PublishSync(Event{Type: SessionError})
	b.PublishSync(Event{Type: BackupCompleted})

	if count != 1 {
		t.Errorf("expected 1 matching event, got %d", count)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := NewBus()
	defer b.Close()

	count := 0
	unsub := b.SubscribeAll(func(e Event) { count++ })
	defer unsub()

	b.PublishSync(Event{Type: SessionRegistered})
	b.PublishSync(Event{Type: RecoveryCompleted})

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestAsyncPublishDelivers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	unsub := b.Subscribe(BackupCompleted, func(e Event) {
		wg.Done()
	})
	defer unsub()

	b.Publish(Event{Type: BackupCompleted, Data: BackupCompletedData{File: "f"}})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async event was not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	defer b.Close()

	count := 0
	unsub := b.Subscribe(SessionActivity, func(e Event) { count++ })

	b.PublishSync(Event{Type: SessionActivity})
	unsub()
	b.PublishSync(Event{Type: SessionActivity})

	if count != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count)
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus()

	count := 0
	b.Subscribe(SessionActivity, func(e Event) { count++ })

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b.PublishSync(Event{Type: SessionActivity})

	if count != 0 {
		t.Errorf("expected no events after close, got %d", count)
	}
}

func TestGlobalBusReset(t *testing.T) {
	count := 0
	Subscribe(SessionActivity, func(e Event) { count++ })

	PublishSync(Event{Type: SessionActivity})
	Reset()
	PublishSync(Event{Type: SessionActivity})

	if count != 1 {
		t.Errorf("expected 1 event after reset, got %d", count)
	}
}
