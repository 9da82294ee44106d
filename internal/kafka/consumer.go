package kafka

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message may be committed. A failed
// message is skipped, not retried.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	commit  func(ctx context.Context, msgs ...kafka.Message) error
	workers int
	log     zerolog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:       r,
		commit:  r.CommitMessages,
		workers: workers,
		log:     log.With().Str("component", "consumer").Str("topic", topic).Logger(),
	}
}

// Start fetches until ctx is done. Messages are sharded to workers by
// partition, so each partition is handled and committed in order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	shards := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			c.work(ctx, h, jobs)
		}(shards[i])
	}
	stop := func() {
		for _, s := range shards {
			close(s)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case shards[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// work handles one shard in order. Once ctx is done the rest of the shard
// is dropped uncommitted; the group hands it out again after the restart.
func (c *Consumer) work(ctx context.Context, h Handler, jobs <-chan kafka.Message) {
	for m := range jobs {
		if ctx.Err() != nil {
			continue
		}
		c.handle(ctx, h, m)
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	if err := h(ctx, m); err != nil {
		// Left uncommitted, but a later commit on this partition moves the
		// offset past it, so the handler must not rely on redelivery.
		c.log.Error().Err(err).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("handler failed")
		return
	}
	if err := c.commit(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error().Err(err).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("commit failed")
	}
}
