package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker is the shared broadcast channel between instances. Publishers also
// receive their own messages.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe returns once the subscription is active.
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// RedisBroker uses Redis PUBLISH/SUBSCRIBE on a single channel.
type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	return &RedisBroker{client: client, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &redisSubscription{
		ps:   ps,
		msgs: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	msgs      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.msgs)
	for msg := range s.ps.Channel() {
		select {
		case s.msgs <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.msgs }

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// MemoryBroker is an in-process Broker shared by several hubs.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[*memorySubscription]struct{}
	buffer int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[*memorySubscription]struct{}),
		buffer: 256,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, payload []byte) error {
	msg := append([]byte(nil), payload...)

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context) (Subscription, error) {
	sub := &memorySubscription{broker: b, ch: make(chan []byte, b.buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	broker *MemoryBroker
	ch     chan []byte
	once   sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		close(s.ch)
		s.broker.mu.Unlock()
	})
	return nil
}
