package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docrag/internal/model"
)

// IngestConsumer reads ingest jobs from RabbitMQ and runs them on the pool.
// A delivery is acked once its document has been processed; malformed
// messages are dropped.
type IngestConsumer struct {
	conn      *amqp.Connection
	pool      *Pool
	processor Processor
	queueName string
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestConsumer(conn *amqp.Connection, pool *Pool, processor Processor, queueName string, prefetch int) *IngestConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &IngestConsumer{
		conn:      conn,
		pool:      pool,
		processor: processor,
		queueName: queueName,
		prefetch:  prefetch,
	}
}

func (c *IngestConsumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	ch, err := c.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open consumer channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare ingest queue failed: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set consumer prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume ingest queue failed: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-consumerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					slog.Warn("ingest delivery channel closed")
					return
				}
				c.handle(consumerCtx, d)
			}
		}
	}()

	slog.Info("ingest consumer started", "queue", c.queueName, "prefetch", c.prefetch)
	return nil
}

func (c *IngestConsumer) handle(ctx context.Context, d amqp.Delivery) {
	job, err := decodeJob(d.Body)
	if err != nil {
		slog.Error("decode ingest job failed", "error", err)
		_ = d.Nack(false, false)
		return
	}

	c.wg.Add(1)
	c.pool.Submit(func() {
		defer c.wg.Done()
		c.processor.Process(context.WithoutCancel(ctx), job.DocumentID)
		if err := d.Ack(false); err != nil {
			slog.Warn("ack ingest job failed", "document_id", job.DocumentID, "error", err)
		}
	})
}

func decodeJob(body []byte) (model.IngestJob, error) {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return model.IngestJob{}, err
	}
	if job.DocumentID == 0 {
		return model.IngestJob{}, fmt.Errorf("ingest job has no document_id")
	}
	return job, nil
}

func (c *IngestConsumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
