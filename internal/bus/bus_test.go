package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()

	ctx := context.Background()
	tenantID := "carrier-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var got *domain.Message
		var wg sync.WaitGroup
		wg.Add(1)

		_, err := b.Subscribe(ctx, tenantID, domain.TopicFNOLReceived, func(ctx context.Context, msg *domain.Message) error {
			got = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		time.Sleep(10 * time.Millisecond)

		if err := b.Publish(ctx, tenantID, domain.TopicFNOLReceived, []byte(`{"policy_number":"POL-1"}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}

		if string(got.Payload) != `{"policy_number":"POL-1"}` {
			t.Errorf("unexpected payload: %s", got.Payload)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected tenantID %s, got %s", tenantID, got.TenantID)
		}
		if got.Topic != domain.TopicFNOLReceived {
			t.Errorf("expected topic %s, got %s", domain.TopicFNOLReceived, got.Topic)
		}
		if got.ID == "" {
			t.Error("expected message ID to be set")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var acme, globex atomic.Int32

		b.Subscribe(ctx, "acme", domain.TopicReport, func(ctx context.Context, msg *domain.Message) error {
			acme.Add(1)
			return nil
		})
		b.Subscribe(ctx, "globex", domain.TopicReport, func(ctx context.Context, msg *domain.Message) error {
			globex.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		b.Publish(ctx, "acme", domain.TopicReport, []byte("report"))
		time.Sleep(50 * time.Millisecond)

		if acme.Load() != 1 {
			t.Errorf("acme should receive 1 message, got %d", acme.Load())
		}
		if globex.Load() != 0 {
			t.Errorf("globex should receive 0 messages, got %d", globex.Load())
		}
	})

	t.Run("RequiresTopic", func(t *testing.T) {
		if err := b.Publish(ctx, tenantID, "", []byte("x")); err == nil {
			t.Error("expected error for empty topic on publish")
		}
		_, err := b.Subscribe(ctx, tenantID, "", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty topic on subscribe")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := b.Publish(ctx, "", domain.TopicReport, []byte("x")); err == nil {
			t.Error("expected error for empty tenantID on publish")
		}
		_, err := b.Subscribe(ctx, "", domain.TopicReport, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty tenantID on subscribe")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := b.Subscribe(ctx, tenantID, domain.TopicInvestigation, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		b.Publish(ctx, tenantID, domain.TopicInvestigation, []byte("one"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Fatalf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)

		b.Publish(ctx, tenantID, domain.TopicInvestigation, []byte("two"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected no delivery after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var first, second atomic.Int32

		b.Subscribe(ctx, tenantID, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
			first.Add(1)
			return nil
		})
		b.Subscribe(ctx, tenantID, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
			second.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		b.Publish(ctx, tenantID, "fanout.topic", []byte("broadcast"))
		time.Sleep(50 * time.Millisecond)

		if first.Load() != 1 || second.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", first.Load(), second.Load())
		}
	})

	t.Run("RequestTimeout", func(t *testing.T) {
		reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		// Nobody is serving this topic, so the request must time out.
		_, err := b.Request(reqCtx, tenantID, "no.responder", []byte("ping"))
		if err == nil {
			t.Error("expected timeout error when no responder is subscribed")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := b.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := b.Subscribe(ctx, tenantID, domain.TopicReport, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != domain.TopicReport {
			t.Errorf("expected topic %s, got %s", domain.TopicReport, sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(100)

	ctx := context.Background()
	tenantID := "carrier-001"

	b.Subscribe(ctx, tenantID, domain.TopicFNOLReceived, func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := b.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	if err := b.Publish(ctx, tenantID, domain.TopicFNOLReceived, []byte("x")); err == nil {
		t.Error("expected publish error after close")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}

	// Close is idempotent
	if err := b.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		eb, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer eb.Close()

		if _, ok := eb.(*ChannelBus); !ok {
			t.Errorf("expected ChannelBus, got %T", eb)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		if err == nil {
			t.Error("expected error for unsupported bus type")
		}
	})
}

func TestChannelBusDropsOnFullBacklog(t *testing.T) {
	b := NewChannelBus(1)
	defer b.Close()

	ctx := context.Background()
	tenantID := "carrier-001"

	block := make(chan struct{})
	b.Subscribe(ctx, tenantID, domain.TopicReport, func(ctx context.Context, msg *domain.Message) error {
		<-block
		return nil
	})

	time.Sleep(10 * time.Millisecond)

	// One message stalls in the handler, one sits in the buffer; the
	// rest have nowhere to go and must be discarded, not block Publish.
	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, tenantID, domain.TopicReport, []byte("report")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	close(block)

	if b.Dropped() == 0 {
		t.Error("expected dropped counter to increment when backlog is full")
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	b := NewChannelBus(1000)
	defer b.Close()

	ctx := context.Background()
	tenantID := "carrier-load"

	var received atomic.Int32
	const messageCount = 200

	var wg sync.WaitGroup
	wg.Add(messageCount)

	b.Subscribe(ctx, tenantID, domain.TopicFNOLReceived, func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	time.Sleep(10 * time.Millisecond)

	for i := 0; i < messageCount; i++ {
		b.Publish(ctx, tenantID, domain.TopicFNOLReceived, []byte("submission"))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}
