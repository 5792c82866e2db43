package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-claims/kestrel/internal/domain"
)

// ChannelBus is the Community tier event bus: in-process pub/sub over Go
// channels, tenant-scoped like the NATS bus but with no broker. Delivery
// is at-most-once; a subscriber that cannot keep up loses messages rather
// than blocking intake. That trade is safe here because every submission
// is persisted before its event is published, so a dropped triage or
// investigation event can be re-driven from the repository.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	closed     bool

	// subs is keyed tenant:topic, then by subscription ID so a
	// subscription can remove exactly itself on Unsubscribe.
	subs map[string]map[string]*channelSub

	dropped atomic.Int64
}

type channelSub struct {
	id      string
	key     string
	topic   string
	owner   *ChannelBus
	handler domain.MessageHandler
	deliver chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates an in-process event bus. bufferSize bounds each
// subscriber's backlog; non-positive values get a default.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		subs:       make(map[string]map[string]*channelSub),
	}
}

func subKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Publish delivers a message to every subscriber of the tenant's topic.
// Subscribers with a full backlog are skipped, not waited on.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	targets := make([]*channelSub, 0, len(b.subs[subKey(tenantID, topic)]))
	for _, sub := range b.subs[subKey(tenantID, topic)] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.deliver <- msg:
		default:
			n := b.dropped.Add(1)
			slog.Warn("subscriber backlog full, message dropped",
				"topic", topic,
				"tenant_id", tenantID,
				"dropped_total", n,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for the tenant's topic. Messages are
// delivered on a dedicated goroutine until Unsubscribe or bus close.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSub{
		id:      uuid.New().String(),
		key:     subKey(tenantID, topic),
		topic:   topic,
		owner:   b,
		handler: handler,
		deliver: make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}

	if b.subs[sub.key] == nil {
		b.subs[sub.key] = make(map[string]*channelSub)
	}
	b.subs[sub.key][sub.id] = sub

	go sub.run()

	return sub, nil
}

// run drains the delivery channel until the subscription is cancelled.
// Handler failures are logged, never retried.
func (s *channelSub) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.deliver:
			if msg == nil {
				continue
			}
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("message handler failed",
					"topic", s.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Request publishes and waits for a single reply on a one-off reply topic,
// mirroring the NATS request/reply pattern. The wait honors the context
// deadline, defaulting to 30 seconds when none is set.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	replyCh := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()

	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, tenantID, topic, payload); err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout")
	}
}

// Ping reports bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Dropped returns how many messages were discarded because a subscriber's
// backlog was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close cancels every subscription. Idempotent.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, byID := range b.subs {
		for _, sub := range byID {
			sub.cancel()
		}
	}
	b.subs = make(map[string]map[string]*channelSub)

	return nil
}

// Unsubscribe cancels delivery and removes the subscription from the bus
// registry so later publishes stop targeting it.
func (s *channelSub) Unsubscribe() error {
	s.cancel()

	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if byID, ok := s.owner.subs[s.key]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(s.owner.subs, s.key)
		}
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSub) Topic() string {
	return s.topic
}
