package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/maliev/geometry-service/internal/analysis"
	"github.com/maliev/geometry-service/internal/logging"
	"github.com/maliev/geometry-service/internal/metrics"
)

// Fetcher is the broker read side. *kafka.Reader satisfies it.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor runs one job to a published outcome. A non-nil error means the
// outcome was not published and the message must not be acknowledged.
type Processor interface {
	Process(ctx context.Context, job *analysis.Job) error
}

// DeadLetterer routes unprocessable envelopes aside.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, key, value []byte, reason string)
}

// Config configures the consumer.
type Config struct {
	Workers       int    // bounded concurrency; the backpressure knob
	DefaultBucket string // bucket used when the envelope omits one
}

// Consumer implements the dispatcher → workers → sequencer flow. Workers
// analyze messages in parallel, but the sequencer commits offsets in fetch
// order, each strictly after that message's outcome is published. Kafka
// commits are cumulative, so in-order committing is what makes "ack only
// after outcome" hold for every message individually.
type Consumer struct {
	fetcher    Fetcher
	pipeline   Processor
	deadLetter DeadLetterer
	cfg        Config
	ready      atomic.Bool
	log        *slog.Logger
}

// New creates a consumer. deadLetter may be nil.
func New(fetcher Fetcher, pipeline Processor, deadLetter DeadLetterer, cfg Config) *Consumer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Consumer{
		fetcher:    fetcher,
		pipeline:   pipeline,
		deadLetter: deadLetter,
		cfg:        cfg,
		log:        logging.Component("consumer"),
	}
}

// NewKafkaReader creates the broker reader for the upload topic.
func NewKafkaReader(brokers []string, groupID, topic string, queueCapacity int) *kafka.Reader {
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:       brokers,
		GroupID:       groupID,
		Topic:         topic,
		MinBytes:      1,
		MaxBytes:      10e6,
		QueueCapacity: queueCapacity,
	})
}

// Ready reports whether the fetch loop is running. Used by the readiness
// probe.
func (c *Consumer) Ready() bool {
	return c.ready.Load()
}

type task struct {
	seq int64
	msg kafka.Message
}

type taskResult struct {
	seq int64
	msg kafka.Message
	err error // non-nil: outcome not published, leave unacknowledged
}

// Run consumes until the context is canceled or a message becomes
// unresolvable (outcome publish failed). In the latter case the offset
// stays uncommitted; the caller must discard this reader and start over
// with a fresh one so the broker redelivers the job. Reprocessing the same
// input is deterministic and safe.
//
// Run owns the lifetime of everything it starts: the fetch loop and all
// workers are stopped and drained before it returns, on every path.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("starting consumer", "workers", c.cfg.Workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workCh := make(chan task, c.cfg.Workers)
	resultCh := make(chan taskResult, c.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for t := range workCh {
				resultCh <- c.handle(runCtx, workerID, t)
			}
		}(i)
	}

	fetchErr := make(chan error, 1)
	go func() {
		defer close(workCh)
		fetchErr <- c.fetchLoop(runCtx, workCh)
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	defer c.ready.Store(false)

	seqErr := c.sequenceCommits(runCtx, resultCh)
	if seqErr != nil {
		// Stop the fetch loop and unblock any workers still sending, then
		// drain resultCh until the worker waitgroup closes it.
		cancel()
		for range resultCh {
		}
	}

	fetchRes := <-fetchErr
	if seqErr != nil {
		return seqErr
	}
	return fetchRes
}

// fetchLoop pulls messages from the broker into the bounded work queue.
func (c *Consumer) fetchLoop(ctx context.Context, workCh chan<- task) error {
	var seq int64
	for {
		msg, err := c.fetcher.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("fetch loop stopping", "reason", ctx.Err())
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		c.ready.Store(true)

		if m := metrics.Get(); m != nil {
			m.QueueDepth.Set(float64(len(workCh)))
		}

		select {
		case workCh <- task{seq: seq, msg: msg}:
			seq++
		case <-ctx.Done():
			return nil
		}
	}
}

// handle runs one message end to end and decides its acknowledgement.
func (c *Consumer) handle(ctx context.Context, workerID int, t task) taskResult {
	log := logging.WorkerLogger(workerID)

	job, err := JobFromEnvelope(t.msg.Value, c.cfg.DefaultBucket)
	if err != nil {
		// Malformed envelopes can never succeed: acknowledge them so they
		// don't loop as poison messages, routing them aside when a
		// dead-letter topic exists.
		log.Warn("rejecting malformed envelope",
			"partition", t.msg.Partition, "offset", t.msg.Offset, "error", err)
		if m := metrics.Get(); m != nil {
			m.JobsMalformed.Inc()
		}
		if c.deadLetter != nil {
			c.deadLetter.DeadLetter(ctx, t.msg.Key, t.msg.Value, err.Error())
		}
		return taskResult{seq: t.seq, msg: t.msg}
	}

	return taskResult{seq: t.seq, msg: t.msg, err: c.pipeline.Process(ctx, job)}
}

// sequenceCommits buffers out-of-order worker results and commits offsets
// in fetch order.
func (c *Consumer) sequenceCommits(ctx context.Context, resultCh <-chan taskResult) error {
	pending := make(map[int64]taskResult)
	var next int64

	for res := range resultCh {
		pending[res.seq] = res

		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			if r.err != nil {
				return fmt.Errorf("message at partition %d offset %d unresolved: %w",
					r.msg.Partition, r.msg.Offset, r.err)
			}
			if err := c.fetcher.CommitMessages(ctx, r.msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("commit offset %d: %w", r.msg.Offset, err)
			}
			delete(pending, next)
			next++
		}
	}

	if len(pending) > 0 && ctx.Err() == nil {
		return errors.New("workers exited with uncommitted results")
	}
	return nil
}
