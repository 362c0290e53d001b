// Package notify delivers templated SMS to customers with bounded retries.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"waitlist/internal/domain"
	"waitlist/internal/events"
	"waitlist/internal/metrics"
	"waitlist/internal/models"
	"waitlist/internal/sms"
	"waitlist/internal/templates"
	"waitlist/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Enqueue when the dispatch queue has no room.
var ErrQueueFull = errors.New("dispatch queue full")

type Request = domain.NotificationRequest

type Result struct {
	Delivered         bool
	ProviderMessageID string
	Attempts          int
}

// DispatchError is the terminal failure of a notification after all attempts.
type DispatchError struct {
	Attempts int
	Last     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("sms not delivered after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *DispatchError) Unwrap() error { return e.Last }

// Store is the subset of the record store the dispatcher writes to.
type Store interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	UpdateMessage(ctx context.Context, msg *models.Message) error
	UpdateBookingFields(ctx context.Context, id string, fields domain.BookingFields) error
}

// Options configures a Dispatcher. With Redis set, requests are queued on a
// shared list so they survive restarts and any instance can deliver them; the
// local channel is the fallback when Redis is absent or unreachable.
type Options struct {
	From          string
	Retry         worker.RetryPolicy
	Workers       int
	QueueSize     int
	Redis         *redis.Client
	QueueKey      string
	DeadLetterKey string
	// DrainTimeout bounds delivery of locally queued requests after Start's
	// context ends.
	DrainTimeout time.Duration
}

type Dispatcher struct {
	store     Store
	provider  domain.SMSProvider
	renderer  *templates.Renderer
	publisher domain.EventPublisher
	from      string
	retry     worker.RetryPolicy
	workers   int
	queue     chan Request
	logger    *zerolog.Logger

	redis         *redis.Client
	queueKey      string
	deadLetterKey string
	drainTimeout  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New builds a dispatcher. publisher may be nil.
func New(store Store, provider domain.SMSProvider, renderer *templates.Renderer, publisher domain.EventPublisher, opts Options, logger *zerolog.Logger) *Dispatcher {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry.MaxAttempts = 3
	}
	if opts.Retry.InitialDelay == 0 {
		opts.Retry.InitialDelay = time.Second
	}
	if opts.Retry.BackoffFactor == 0 {
		opts.Retry.BackoffFactor = 2
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 256
	}
	if opts.QueueKey == "" {
		opts.QueueKey = defaultQueueKey
	}
	if opts.DeadLetterKey == "" {
		opts.DeadLetterKey = defaultDeadLetterKey
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if renderer == nil {
		renderer = templates.NewRenderer(logger)
	}

	return &Dispatcher{
		store:     store,
		provider:  provider,
		renderer:  renderer,
		publisher: publisher,
		from:      opts.From,
		retry:     opts.Retry,
		workers:   opts.Workers,
		queue:     make(chan Request, opts.QueueSize),
		logger:    logger,
		sleep:     sleepContext,
		now:       func() time.Time { return time.Now().UTC() },

		redis:         opts.Redis,
		queueKey:      opts.QueueKey,
		deadLetterKey: opts.DeadLetterKey,
		drainTimeout:  opts.DrainTimeout,
	}
}

// Send renders and delivers one message, retrying transient carrier failures.
// Every attempt is recorded as a Message; the final outcome is copied to the
// booking's delivery status.
func (d *Dispatcher) Send(ctx context.Context, req Request) (Result, error) {
	body := d.renderer.Render(req.TemplateKey, req.Language, req.Vars)
	maxAttempts := d.retry.Attempts()

	var (
		last    error
		lastMsg *models.Message
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		msg := d.newMessage(req, body, attempt)
		if err := d.store.CreateMessage(ctx, msg); err != nil {
			d.logger.Warn().Err(err).Str("booking_id", req.BookingID).Msg("failed to record sms attempt")
		}
		lastMsg = msg

		providerID, err := d.provider.Send(ctx, d.from, req.Phone, body)
		msg.UpdatedAt = d.now()
		if err == nil {
			msg.DeliveryStatus = models.DeliverySent
			msg.ProviderMessageID = providerID
			d.record(ctx, msg)
			metrics.IncSMSAttempt(req.TemplateKey, models.DeliverySent)
			d.finish(ctx, req, msg)
			return Result{Delivered: true, ProviderMessageID: providerID, Attempts: attempt}, nil
		}

		msg.DeliveryStatus = models.DeliveryFailed
		msg.Error = err.Error()
		d.record(ctx, msg)
		metrics.IncSMSAttempt(req.TemplateKey, models.DeliveryFailed)
		last = err

		permanent := sms.IsPermanent(err)
		d.logger.Warn().
			Err(err).
			Str("booking_id", req.BookingID).
			Str("template", req.TemplateKey).
			Int("attempt", attempt).
			Bool("permanent", permanent).
			Msg("sms attempt failed")

		if permanent || attempt == maxAttempts {
			break
		}
		if err := d.sleep(ctx, d.retry.NextDelay(attempt)); err != nil {
			break
		}
	}

	if attempt > maxAttempts {
		attempt = maxAttempts
	}
	d.finish(ctx, req, lastMsg)
	dispatchErr := &DispatchError{Attempts: attempt, Last: last}
	d.pushDeadLetter(ctx, req, dispatchErr)
	return Result{Attempts: attempt}, dispatchErr
}

// Enqueue hands the request to the worker pool without waiting for delivery.
// The booking's delivery status becomes queued. A request that cannot be
// queued anywhere is recorded as a failed Message and ErrQueueFull is returned.
func (d *Dispatcher) Enqueue(ctx context.Context, req Request) error {
	d.setDeliveryStatus(ctx, req, models.DeliveryQueued)

	if d.redis != nil {
		err := d.pushRedis(ctx, req)
		if err == nil {
			return nil
		}
		d.logger.Warn().Err(err).Str("booking_id", req.BookingID).Msg("redis enqueue failed, using local queue")
	}

	select {
	case d.queue <- req:
		return nil
	default:
		d.drop(ctx, req, ErrQueueFull)
		return ErrQueueFull
	}
}

// Start runs the dispatch workers until ctx is done, then delivers whatever is
// still in the local queue. Requests on the Redis list stay there for the next
// instance to pick up.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Int("workers", d.workers).Bool("redis", d.redis != nil).Msg("dispatcher started")
	defer d.logger.Info().Msg("dispatcher stopped")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()
	d.drain(ctx)
}

func (d *Dispatcher) work(ctx context.Context) {
	// A delivery already started finishes after shutdown so Message rows stay consistent.
	sendCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case req := <-d.queue:
			d.process(sendCtx, req)
			continue
		default:
		}

		if d.redis == nil {
			select {
			case <-ctx.Done():
				return
			case req := <-d.queue:
				d.process(sendCtx, req)
			}
			continue
		}

		req, ok, err := d.popRedis(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("redis dequeue failed")
			select {
			case <-ctx.Done():
				return
			case req := <-d.queue:
				d.process(sendCtx, req)
			case <-time.After(pollInterval):
			}
			continue
		}
		if ok {
			d.process(sendCtx, req)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, req Request) {
	if _, err := d.Send(ctx, req); err != nil {
		d.logger.Error().
			Err(err).
			Str("booking_id", req.BookingID).
			Str("template", req.TemplateKey).
			Msg("sms dispatch failed")
	}
}

// drain empties the local queue after shutdown. Each request is moved back to
// Redis when possible, otherwise delivered before the drain deadline, otherwise
// recorded as failed.
func (d *Dispatcher) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
	defer cancel()

	drained := 0
	for {
		var req Request
		select {
		case req = <-d.queue:
		default:
			if drained > 0 {
				d.logger.Info().Int("requests", drained).Msg("dispatch queue drained")
			}
			return
		}
		drained++

		switch {
		case drainCtx.Err() != nil:
			d.drop(context.WithoutCancel(ctx), req, errDispatcherStopped)
		case d.redis != nil && d.pushRedis(drainCtx, req) == nil:
		default:
			d.process(drainCtx, req)
		}
	}
}

// drop records a request that never reached the carrier.
func (d *Dispatcher) drop(ctx context.Context, req Request, cause error) {
	msg := d.newMessage(req, d.renderer.Render(req.TemplateKey, req.Language, req.Vars), 0)
	msg.DeliveryStatus = models.DeliveryFailed
	msg.Error = cause.Error()
	if err := d.store.CreateMessage(ctx, msg); err != nil {
		d.logger.Warn().Err(err).Str("booking_id", req.BookingID).Msg("failed to record dropped sms")
	}
	metrics.IncSMSAttempt(req.TemplateKey, "dropped")
	d.pushDeadLetter(ctx, req, cause)
	d.finish(ctx, req, msg)
}

func (d *Dispatcher) newMessage(req Request, body string, attempt int) *models.Message {
	now := d.now()
	return &models.Message{
		ID:             uuid.NewString(),
		BookingID:      req.BookingID,
		RestaurantID:   req.RestaurantID,
		Phone:          req.Phone,
		Direction:      models.DirectionOutbound,
		TemplateKey:    req.TemplateKey,
		Body:           body,
		Language:       req.Language,
		Attempt:        attempt,
		DeliveryStatus: models.DeliveryQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (d *Dispatcher) record(ctx context.Context, msg *models.Message) {
	if err := d.store.UpdateMessage(ctx, msg); err != nil {
		d.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to record sms outcome")
	}
}

func (d *Dispatcher) finish(ctx context.Context, req Request, msg *models.Message) {
	if msg == nil {
		return
	}
	d.setDeliveryStatus(ctx, req, msg.DeliveryStatus)
	if d.publisher != nil && req.RestaurantID != "" {
		if err := d.publisher.Publish(ctx, req.RestaurantID, events.KindNewMessage, msg); err != nil {
			d.logger.Warn().Err(err).Str("booking_id", req.BookingID).Msg("failed to publish message event")
		}
	}
}

func (d *Dispatcher) setDeliveryStatus(ctx context.Context, req Request, status string) {
	if req.BookingID == "" {
		return
	}
	if err := d.store.UpdateBookingFields(ctx, req.BookingID, domain.BookingFields{DeliveryStatus: &status}); err != nil {
		d.logger.Warn().Err(err).Str("booking_id", req.BookingID).Msg("failed to update delivery status")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
