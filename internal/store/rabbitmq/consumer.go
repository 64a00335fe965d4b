package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const attemptHeader = "x-attempt"

// ErrDrop tells the consumer to acknowledge and discard an event without retrying.
var ErrDrop = errors.New("drop event")

// Handler processes one message_created event.
type Handler func(ctx context.Context, messageID string) error

type ConsumerOptions struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      *zap.Logger
}

// retryPublisher is the part of *amqp.Channel used to schedule retries.
type retryPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	pub   retryPublisher
	queue string

	concurrency int
	maxRetries  int
	retryDelay  time.Duration
	log         *zap.Logger

	// guards publishing to the retry queue from several workers
	pubMu sync.Mutex
}

func NewConsumer(url, queue string, opts ConsumerOptions) (*Consumer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(opts.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:        conn,
		ch:          ch,
		pub:         ch,
		queue:       queue,
		concurrency: opts.Concurrency,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		log:         opts.Logger,
	}, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is cancelled or the broker closes the delivery
// channel, then waits for in-flight events to finish.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Info("consumer started", zap.String("queue", c.queue), zap.Int("concurrency", c.concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				if ctx.Err() != nil {
					// not started yet, hand it back to the broker
					_ = d.Nack(false, true)
					continue
				}
				c.handle(ctx, workerID, d, h)
			}
		}(i)
	}

	// dispatcher
	defer func() {
		close(jobs)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handle(ctx context.Context, workerID int, d amqp.Delivery, h Handler) {
	log := c.log.With(zap.Int("worker", workerID))

	id, err := DecodeMessageCreated(d.Body)
	if err != nil {
		log.Warn("bad event, dead-lettering", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	log = log.With(zap.String("message_id", id))

	attempt := attemptOf(d.Headers)
	start := time.Now()
	err = h(ctx, id)

	switch decide(err, attempt, c.maxRetries) {
	case actionAck:
		if err != nil {
			log.Warn("event dropped", zap.Error(err))
		}
		if aerr := d.Ack(false); aerr != nil {
			log.Error("ack failed", zap.Error(aerr))
		}
		log.Debug("event handled", zap.Duration("cost", time.Since(start)))

	case actionRetry:
		log.Warn("event failed, scheduling retry",
			zap.Int("attempt", attempt+1), zap.Duration("delay", c.retryDelay), zap.Error(err))
		if perr := c.publishRetry(ctx, d, attempt+1); perr != nil {
			log.Error("retry publish failed, dead-lettering", zap.Error(perr))
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)

	case actionDead:
		log.Error("event failed, retries exhausted", zap.Int("attempt", attempt), zap.Error(err))
		_ = d.Nack(false, false)
	}
}

func (c *Consumer) publishRetry(ctx context.Context, d amqp.Delivery, attempt int) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	return c.pub.PublishWithContext(cctx, "", retryQueue(c.queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Body:         d.Body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(c.retryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
	})
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDead
)

func decide(err error, attempt, maxRetries int) action {
	switch {
	case err == nil, errors.Is(err, ErrDrop):
		return actionAck
	case attempt < maxRetries:
		return actionRetry
	default:
		return actionDead
	}
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}
