package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

const (
	sendTimeout  = 15 * time.Second
	maxIdleWait  = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

// Sink delivers one message to the domain topic and waits for the server ack.
type Sink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) error
}

type topicSink struct {
	publisher *gcppubsub.Publisher
}

func newTopicSink(p *gcppubsub.Publisher) (Sink, error) {
	if p == nil {
		return nil, errors.New("domain publisher is not configured")
	}
	return topicSink{publisher: p}, nil
}

func (s topicSink) Send(ctx context.Context, msg *gcppubsub.Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := s.publisher.Publish(ctx, msg).Get(ctx)
	return err
}

type RelayConfig struct {
	Outbox  config.OutboxConfig
	Logger  *logger.Logger
	DB      txRunner
	Store   rowStore
	Sink    Sink
	Metrics *metrics.OutboxMetrics
}

// Relay moves committed outbox rows onto Pub/Sub. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several relays can share
// a table.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       rowStore
	sink        Sink
	metrics     *metrics.OutboxMetrics
	batch       int
	maxAttempts int
	idle        time.Duration
}

func NewRelay(c RelayConfig) (*Relay, error) {
	switch {
	case c.Logger == nil:
		return nil, errors.New("logger is required")
	case c.DB == nil:
		return nil, errors.New("database client is required")
	case c.Store == nil:
		return nil, errors.New("outbox store is required")
	case c.Sink == nil:
		return nil, errors.New("sink is required")
	}

	r := &Relay{
		logg:        c.Logger,
		db:          c.DB,
		store:       c.Store,
		sink:        c.Sink,
		metrics:     c.Metrics,
		batch:       c.Outbox.BatchSize,
		maxAttempts: c.Outbox.MaxAttempts,
		idle:        time.Duration(c.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batch <= 0 {
		r.batch = 50
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 10
	}
	if r.idle <= 0 {
		r.idle = 500 * time.Millisecond
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by the next one; a short batch waits for the poll interval and
// consecutive failures back off up to maxIdleWait.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	failures := 0
	for {
		n, err := r.drainOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		switch {
		case err != nil:
			failures++
			wait = backoff(r.idle, failures)
			r.logg.Error(r.logg.WithField(ctx, "failures", failures), "outbox batch failed", err)
		case n == r.batch:
			failures = 0
			continue
		default:
			failures = 0
			wait = r.idle
		}

		timer := time.NewTimer(wait + rand.N(jitterWindow))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drainOnce handles one claimed batch and returns how many rows it saw.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	seen := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batch, r.maxAttempts)
		if err != nil {
			return err
		}
		seen = len(rows)
		for _, row := range rows {
			if err := r.deliver(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

// deliver sends one row and records the outcome on it. The returned error is
// only non-nil when the outcome itself could not be stored.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    string(row.EventType),
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	envelope, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return r.park(ctx, tx, row, fmt.Errorf("decode envelope: %w", err))
	}

	sendErr := r.sink.Send(ctx, &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if sendErr == nil {
		if err := r.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.Inc(string(row.EventType), metrics.OutboxPublished)
		r.logg.Info(r.logg.WithField(ctx, "event_id", envelope.EventID), "outbox event published")
		return nil
	}

	if row.AttemptCount+1 >= r.maxAttempts {
		return r.park(ctx, tx, row, fmt.Errorf("max publish attempts reached: %w", sendErr))
	}

	r.logg.Warn(r.logg.WithField(ctx, "error", sendErr.Error()), "outbox publish failed, will retry")
	if err := r.store.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	r.metrics.Inc(string(row.EventType), metrics.OutboxRetry)
	return nil
}

// park pins the row at the attempt ceiling. Retention only removes published
// rows, so parked ones stay with their last_error for inspection.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, cause error) error {
	r.logg.Warn(r.logg.WithField(ctx, "error", cause.Error()), "outbox event parked")
	if err := r.store.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	r.metrics.Inc(string(row.EventType), metrics.OutboxParked)
	return nil
}

func backoff(base time.Duration, failures int) time.Duration {
	wait := base
	for i := 0; i < failures && wait < maxIdleWait; i++ {
		wait *= 2
	}
	return min(wait, maxIdleWait)
}
