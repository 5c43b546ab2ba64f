// Package queue implements the durable campaign work queue on Redis Streams.
// Delivery is at-least-once: entries are acknowledged only after the handler
// reaches a terminal outcome, and entries left pending by a crashed worker are
// reclaimed via XAUTOCLAIM.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const messageField = "campaignId"

// TerminalError marks a handler error as terminal: the message must be ACKed
// even though err != nil, because the failure has been persisted on the
// campaign record and redelivery would not change the outcome.
type TerminalError struct{ Err error }

func (e TerminalError) Error() string {
	if e.Err == nil {
		return "terminal"
	}
	return e.Err.Error()
}

func (e TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err so the consumer acknowledges the message.
func Terminal(err error) error { return TerminalError{Err: err} }

// IsTerminal reports whether err carries a TerminalError.
func IsTerminal(err error) bool {
	var te TerminalError
	return errors.As(err, &te)
}

// Enqueuer is the producer-side contract used by the HTTP layer.
type Enqueuer interface {
	Enqueue(ctx context.Context, campaignID string) error
}

// StreamQueue publishes campaign ids onto a Redis stream consumed by workers.
type StreamQueue struct {
	rdb    *redis.Client
	stream string
	group  string
	maxLen int64
}

// NewStreamQueue constructs the producer for the given stream and group.
func NewStreamQueue(rdb *redis.Client, stream, group string) *StreamQueue {
	return &StreamQueue{
		rdb:    rdb,
		stream: strings.TrimSpace(stream),
		group:  strings.TrimSpace(group),
		maxLen: 100000,
	}
}

// Enqueue appends a {campaignId} message to the stream.
func (q *StreamQueue) Enqueue(ctx context.Context, campaignID string) error {
	if q == nil || q.rdb == nil {
		return errors.New("queue: not initialized")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return errors.New("queue: campaign id is empty")
	}
	args := &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]interface{}{messageField: campaignID},
	}
	return q.rdb.XAdd(ctx, args).Err()
}

// EnsureGroup creates the consumer group, tolerating pre-existing groups.
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	if q == nil || q.rdb == nil {
		return errors.New("queue: not initialized")
	}
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "busygroup") {
		return nil
	}
	return err
}

// Handler processes one campaign id pulled from the stream.
type Handler func(ctx context.Context, campaignID string) error

// Consumer reads campaign ids from the stream's consumer group and dispatches
// them to a Handler.
type Consumer struct {
	rdb      *redis.Client
	logger   zerolog.Logger
	stream   string
	group    string
	consumer string
	block    time.Duration
	count    int64
	inflight chan struct{}

	claimMinIdle time.Duration
	claimCount   int64
	claimStart   string
	claimEvery   time.Duration
	lastClaim    time.Time
}

// NewConsumer builds a consumer with crash-recovery defaults. An empty
// consumer name gets a unique generated one.
func NewConsumer(rdb *redis.Client, logger zerolog.Logger, stream, group, consumer string) *Consumer {
	name := strings.TrimSpace(consumer)
	if name == "" {
		name = "worker-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return &Consumer{
		rdb:      rdb,
		logger:   logger,
		stream:   strings.TrimSpace(stream),
		group:    strings.TrimSpace(group),
		consumer: name,
		block:    10 * time.Second,
		count:    10,

		// Entries abandoned by a crashed worker become claimable once idle
		// longer than claimMinIdle.
		claimMinIdle: time.Hour,
		claimCount:   50,
		claimStart:   "0-0",
		claimEvery:   30 * time.Second,
	}
}

// SetConcurrency caps the number of handler goroutines. n <= 1 runs handlers
// sequentially.
func (c *Consumer) SetConcurrency(n int) {
	if c == nil {
		return
	}
	if n <= 1 {
		c.inflight = nil
		return
	}
	c.inflight = make(chan struct{}, n)
}

// ConsumeLoop blocks reading the stream until ctx is cancelled.
func (c *Consumer) ConsumeLoop(ctx context.Context, handler Handler) error {
	if c == nil || c.rdb == nil {
		return errors.New("queue: consumer not initialized")
	}
	if c.stream == "" || c.group == "" {
		return errors.New("queue: stream/group not configured")
	}
	if handler == nil {
		return errors.New("queue: handler is required")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.maybeAutoClaim(ctx, handler)

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    c.count,
			Block:    c.block,
			NoAck:    false,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("queue: read group failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				c.dispatch(ctx, handler, msg)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, handler Handler, msg redis.XMessage) {
	if c.inflight == nil {
		c.handleOne(ctx, handler, msg)
		return
	}
	c.inflight <- struct{}{}
	go func(m redis.XMessage) {
		defer func() { <-c.inflight }()
		c.handleOne(ctx, handler, m)
	}(msg)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	if err := c.rdb.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		c.logger.Error().Err(err).Str("msg_id", id).Msg("queue: ack failed")
	}
}

func (c *Consumer) handleOne(ctx context.Context, handler Handler, msg redis.XMessage) {
	raw, ok := msg.Values[messageField]
	if !ok {
		c.ack(ctx, msg.ID)
		return
	}
	campaignID := strings.TrimSpace(fmt.Sprintf("%v", raw))
	if campaignID == "" {
		c.ack(ctx, msg.ID)
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().
					Str("msg_id", msg.ID).
					Str("campaign_id", campaignID).
					Msgf("queue: handler panic: %v", r)
				// Terminal so a poison message does not hot-loop; the handler
				// is responsible for persisting campaign state.
				err = Terminal(fmt.Errorf("panic: %v", r))
			}
		}()
		err = handler(ctx, campaignID)
	}()

	// ACK rules: nil or terminal always ACKs; anything else stays pending for
	// auto-claim redelivery.
	if err == nil || IsTerminal(err) {
		c.ack(ctx, msg.ID)
		return
	}
	c.logger.Warn().
		Err(err).
		Str("msg_id", msg.ID).
		Str("campaign_id", campaignID).
		Msg("queue: non-terminal handler error, keeping pending")
}

func (c *Consumer) maybeAutoClaim(ctx context.Context, handler Handler) {
	if c.claimEvery <= 0 || c.claimMinIdle <= 0 {
		return
	}
	now := time.Now()
	if !c.lastClaim.IsZero() && now.Sub(c.lastClaim) < c.claimEvery {
		return
	}
	c.lastClaim = now

	msgs, nextStart, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimMinIdle,
		Start:    c.claimStart,
		Count:    c.claimCount,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("queue: autoclaim failed")
		}
		return
	}
	if strings.TrimSpace(nextStart) != "" {
		c.claimStart = nextStart
	}
	for _, msg := range msgs {
		c.dispatch(ctx, handler, msg)
	}
}
