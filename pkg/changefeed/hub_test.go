package changefeed

import (
	"testing"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
)

// TestHubPublishSubscribe はHubの発行・購読を検証する。
func TestHubPublishSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("発行したイベントを購読者が受信できる", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		ch, unsubscribe := hub.Subscribe(4)
		defer unsubscribe()

		ev, err := event.New(event.TypeOrderPlaced, event.OrderPlacedData{OrderID: "order-1"})
		if err != nil {
			t.Fatalf("イベント生成に失敗: %v", err)
		}
		hub.Publish(ev)

		select {
		case got := <-ch:
			if got.EventType != event.TypeOrderPlaced {
				t.Errorf("EventType: got %v, want %v", got.EventType, event.TypeOrderPlaced)
			}
		case <-time.After(time.Second):
			t.Fatal("イベントを受信できませんでした")
		}
	})

	t.Run("複数の購読者が同じイベントを受信できる", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		ch1, unsub1 := hub.Subscribe(4)
		defer unsub1()
		ch2, unsub2 := hub.Subscribe(4)
		defer unsub2()

		ev, err := event.New(event.TypeWaiterCalled, event.WaiterCalledData{CallID: "call-1"})
		if err != nil {
			t.Fatalf("イベント生成に失敗: %v", err)
		}
		hub.Publish(ev)

		for i, ch := range []<-chan *event.Event{ch1, ch2} {
			select {
			case got := <-ch:
				if got.ID != ev.ID {
					t.Errorf("購読者%d: ID: got %v, want %v", i+1, got.ID, ev.ID)
				}
			case <-time.After(time.Second):
				t.Fatalf("購読者%dがイベントを受信できませんでした", i+1)
			}
		}
	})

	t.Run("解除した購読者にはイベントが配信されない", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		ch, unsubscribe := hub.Subscribe(4)
		unsubscribe()

		if hub.SubscriberCount() != 0 {
			t.Errorf("購読者数: got %d, want 0", hub.SubscriberCount())
		}

		ev, err := event.New(event.TypeOrderPlaced, event.OrderPlacedData{OrderID: "order-2"})
		if err != nil {
			t.Fatalf("イベント生成に失敗: %v", err)
		}
		hub.Publish(ev)

		select {
		case got := <-ch:
			t.Errorf("解除後にイベントを受信しました: %v", got.ID)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("購読者のバッファが満杯でもPublishはブロックしない", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		_, unsubscribe := hub.Subscribe(1)
		defer unsubscribe()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				ev, _ := event.New(event.TypeOrderPlaced, event.OrderPlacedData{OrderID: "order"})
				hub.Publish(ev)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publishがブロックしました")
		}
	})
}
