package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TestCodecDecodesDecision tests payload decoding with metadata fallbacks.
func TestCodecDecodesDecision(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"outcome":"applied","user_id":"u-1","days":30,"provider_payment_id":"p-1"}`))
	msg.Metadata.Set("provider", "testpay")
	msg.Metadata.Set("request_id", "req-1")

	evt, err := DefaultCodec{}.Decode("payments.applied", msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Topic != "payments.applied" {
		t.Fatalf("unexpected topic %q", evt.Topic)
	}
	if evt.Decision.Outcome != "applied" || evt.Decision.UserID != "u-1" || evt.Decision.Days != 30 {
		t.Fatalf("unexpected decision: %+v", evt.Decision)
	}
	if evt.Decision.Provider != "testpay" || evt.Decision.RequestID != "req-1" {
		t.Fatalf("expected metadata fallbacks, got %+v", evt.Decision)
	}
}

// TestWorkerDispatchesByTopic tests a publish/consume round trip over the
// in-process pub/sub.
func TestWorkerDispatchesByTopic(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NewStdLogger(false, false))

	var mu sync.Mutex
	var got []Decision
	done := make(chan struct{})

	wk := New(
		WithSubscriber(pubsub),
		WithTopics("payments.applied"),
		WithConcurrency(2),
	)
	wk.HandleTopic("payments.applied", func(ctx context.Context, evt *Event) error {
		mu.Lock()
		got = append(got, evt.Decision)
		mu.Unlock()
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := wk.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()

	// give the subscription a moment to attach
	time.Sleep(50 * time.Millisecond)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"outcome":"applied","user_id":"u-1","days":30}`))
	if err := pubsub.Publish("payments.applied", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler was not called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].UserID != "u-1" {
		t.Fatalf("unexpected decisions: %+v", got)
	}
}

// TestWorkerOutcomeFallback tests dispatch by outcome when no topic handler
// matches.
func TestWorkerOutcomeFallback(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"outcome":"error","outcome_reason":"ledger unavailable"}`))

	wk := New(WithTopics("payments.error"))
	handled := false
	wk.HandleOutcome("error", func(ctx context.Context, evt *Event) error {
		handled = true
		return nil
	})

	wk.handleMessage(context.Background(), "payments.error", msg)
	if !handled {
		t.Fatalf("expected outcome handler to run")
	}
}

// TestWorkerRequiresSubscriber tests the guard conditions of Run.
func TestWorkerRequiresSubscriber(t *testing.T) {
	if err := New().Run(context.Background()); err == nil {
		t.Fatalf("expected error without subscriber")
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	if err := New(WithSubscriber(pubsub)).Run(context.Background()); err == nil {
		t.Fatalf("expected error without topics")
	}
}
