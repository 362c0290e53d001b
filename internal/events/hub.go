package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"waitlist/internal/metrics"
	"waitlist/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type HubOptions struct {
	InstanceID     string
	PublishTimeout time.Duration
	OutboxSize     int
}

// Hub delivers events to local connections and mirrors them through a Broker
// to other instances. A nil broker keeps fan-out within this process.
type Hub struct {
	registry       *Registry
	broker         Broker
	instanceID     string
	publishTimeout time.Duration
	outbox         chan Envelope
	retry          worker.RetryPolicy
	logger         *zerolog.Logger
	now            func() time.Time

	readyOnce sync.Once
	ready     chan struct{}
}

func NewHub(registry *Registry, broker Broker, opts HubOptions, logger *zerolog.Logger) *Hub {
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.OutboxSize < 1 {
		opts.OutboxSize = 1024
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if registry == nil {
		registry = NewRegistry(logger)
	}

	return &Hub{
		registry:       registry,
		broker:         broker,
		instanceID:     opts.InstanceID,
		publishTimeout: opts.PublishTimeout,
		outbox:         make(chan Envelope, opts.OutboxSize),
		retry:          worker.RetryPolicy{InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, BackoffFactor: 2},
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		ready:          make(chan struct{}),
	}
}

func (h *Hub) InstanceID() string { return h.instanceID }

// Distributed reports whether events are shared with other instances.
func (h *Hub) Distributed() bool { return h.broker != nil }

func (h *Hub) Registry() *Registry { return h.registry }

// Ready is closed once the hub listens on the shared channel (or immediately
// after Run starts in single-instance mode).
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Publish delivers the event to this instance's connections before returning,
// then queues it for the shared channel. Upstream failures are only logged.
func (h *Hub) Publish(ctx context.Context, restaurantID string, kind Kind, payload any) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}

	env := Envelope{
		RestaurantID:   restaurantID,
		Type:           kind,
		Data:           data,
		SourceServerID: h.instanceID,
		PublishedAt:    h.now(),
	}
	frame, err := json.Marshal(env.frame())
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	h.registry.Broadcast(restaurantID, frame)
	metrics.IncFanOut("local")

	if h.broker == nil {
		return nil
	}
	select {
	case h.outbox <- env:
	default:
		metrics.IncFanOut("upstream_dropped")
		h.logger.Warn().
			Str("restaurant_id", restaurantID).
			Str("type", string(kind)).
			Msg("fan-out outbox full, event not shared")
	}
	return nil
}

// Subscribe registers conn and sends it the connected frame.
func (h *Hub) Subscribe(restaurantID string, conn Connection) error {
	greeting, err := EncodeFrame(KindConnected, map[string]string{
		"restaurantId": restaurantID,
		"instanceId":   h.instanceID,
	}, h.now())
	if err != nil {
		return err
	}
	return h.registry.Add(restaurantID, conn, greeting)
}

func (h *Hub) Unsubscribe(restaurantID string, conn Connection) {
	h.registry.Remove(restaurantID, conn)
}

// Run drives the upstream publisher and the shared channel subscriber until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.broker == nil {
		h.logger.Warn().
			Str("instance_id", h.instanceID).
			Msg("no shared channel configured, fan-out limited to this instance")
		h.markReady()
		<-ctx.Done()
		return nil
	}

	h.logger.Info().Str("instance_id", h.instanceID).Msg("cross-instance fan-out enabled")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.publishLoop(ctx)
	}()

	h.subscribeLoop(ctx)
	wg.Wait()
	return nil
}

func (h *Hub) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *Hub) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.outbox:
			h.publishUpstream(ctx, env)
		}
	}
}

func (h *Hub) publishUpstream(ctx context.Context, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode envelope")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()
	if err := h.broker.Publish(pubCtx, payload); err != nil {
		metrics.IncFanOut("upstream_error")
		h.logger.Error().
			Err(err).
			Str("restaurant_id", env.RestaurantID).
			Str("type", string(env.Type)).
			Msg("failed to publish event to shared channel")
		return
	}
	metrics.IncFanOut("upstream")
}

func (h *Hub) subscribeLoop(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		sub, err := h.broker.Subscribe(ctx)
		if err != nil {
			attempt++
			h.logger.Error().Err(err).Int("attempt", attempt).Msg("failed to subscribe to shared channel")
			if !sleep(ctx, h.retry.NextDelay(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		h.markReady()
		h.consume(ctx, sub)
		if err := sub.Close(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to close subscription")
		}
	}
}

func (h *Hub) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				h.logger.Warn().Msg("shared channel subscription closed")
				return
			}
			h.deliverRemote(payload)
		}
	}
}

func (h *Hub) deliverRemote(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.logger.Warn().Err(err).Msg("discarding malformed envelope")
		return
	}
	if env.SourceServerID == h.instanceID {
		metrics.IncFanOut("echo")
		return
	}
	if !env.Type.Valid() {
		h.logger.Warn().Str("type", string(env.Type)).Msg("discarding envelope with unknown type")
		return
	}

	frame, err := json.Marshal(env.frame())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode frame")
		return
	}
	h.registry.Broadcast(env.RestaurantID, frame)
	metrics.IncFanOut("remote")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
