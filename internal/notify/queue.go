package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultQueueKey      = "waitlist:sms:queue"
	defaultDeadLetterKey = "waitlist:sms:deadletter"
	popTimeout           = time.Second
	pollInterval         = 200 * time.Millisecond
)

// errDispatcherStopped marks requests that were still queued locally when the
// drain deadline ran out.
var errDispatcherStopped = errors.New("dispatcher stopped before delivery")

// DeadLetter is a request that will not be retried, kept for operators.
type DeadLetter struct {
	Request  Request   `json:"request"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (d *Dispatcher) pushRedis(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return d.redis.LPush(ctx, d.queueKey, payload).Err()
}

// popRedis waits up to popTimeout for a request on the shared queue.
// ok is false when the wait timed out.
func (d *Dispatcher) popRedis(ctx context.Context) (Request, bool, error) {
	res, err := d.redis.BRPop(ctx, popTimeout, d.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Request{}, false, nil
		}
		return Request{}, false, err
	}
	if len(res) < 2 {
		return Request{}, false, nil
	}

	var req Request
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		d.logger.Error().Err(err).Str("payload", res[1]).Msg("discarding malformed queued sms")
		return Request{}, false, nil
	}
	return req, true, nil
}

// pushDeadLetter keeps a terminally failed request on the shared dead-letter
// list. Without Redis the failed Message row is the only record.
func (d *Dispatcher) pushDeadLetter(ctx context.Context, req Request, cause error) {
	d.logger.Error().
		Err(cause).
		Str("booking_id", req.BookingID).
		Str("template", req.TemplateKey).
		Msg("sms moved to dead letter")
	if d.redis == nil {
		return
	}

	payload, err := json.Marshal(DeadLetter{Request: req, Error: cause.Error(), FailedAt: d.now()})
	if err != nil {
		return
	}
	if err := d.redis.LPush(context.WithoutCancel(ctx), d.deadLetterKey, payload).Err(); err != nil {
		d.logger.Warn().Err(err).Str("booking_id", req.BookingID).Msg("failed to push dead letter")
	}
}
