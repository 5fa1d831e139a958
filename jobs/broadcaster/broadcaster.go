package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"venue/infra/outbox"
)

// Broadcaster drains the durable trade outbox to the trade feed topic.
// Delivery is at-least-once: an entry moves NEW -> SENT -> ACKED and is
// retried on the next pass until the broker confirms it.
type Broadcaster struct {
	log      *zap.Logger
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
}

func New(log *zap.Logger, ob *outbox.Outbox, brokers []string, topic string, interval time.Duration) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Broadcaster{
		log:      log,
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
	}, nil
}

// Run drains pending entries every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.drain(); err != nil {
				b.log.Warn("outbox drain pass failed", zap.Error(err))
			}
		}
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}

// tradeKey is the minimal slice of the payload needed for partitioning.
type tradeKey struct {
	Instrument string `json:"instrument"`
	ID         string `json:"id"`
}

func (b *Broadcaster) drain() error {
	return b.outbox.ScanPending(func(rec *outbox.Record) error {
		var tk tradeKey
		if err := json.Unmarshal(rec.Payload, &tk); err != nil {
			b.log.Error("undecodable outbox payload",
				zap.Uint64("seq", rec.Seq), zap.Int("index", rec.Index), zap.Error(err))
			// Poison entry; ack it out of the way rather than wedge the feed.
			return b.outbox.MarkAcked(rec.Seq, rec.Index)
		}

		if err := b.outbox.MarkSent(rec.Seq, rec.Index); err != nil {
			return err
		}
		_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(tk.Instrument),
			Value: sarama.ByteEncoder(rec.Payload),
		})
		if err != nil {
			b.log.Warn("trade publish failed, will retry",
				zap.String("trade", tk.ID), zap.Error(err))
			return nil
		}
		return b.outbox.MarkAcked(rec.Seq, rec.Index)
	})
}
