package worker

import (
	"context"
	"log/slog"
)

// Processor ingests one document. Implementations record their own failures.
type Processor interface {
	Process(ctx context.Context, documentID uint)
}

// Publisher enqueues an ingestion job on a broker.
type Publisher interface {
	PublishIngest(ctx context.Context, documentID uint) error
}

// LocalDispatcher runs ingestion on the in-process pool.
type LocalDispatcher struct {
	pool      *Pool
	processor Processor
}

func NewLocalDispatcher(pool *Pool, processor Processor) *LocalDispatcher {
	return &LocalDispatcher{pool: pool, processor: processor}
}

// Dispatch detaches ingestion from the request context so it outlives the
// upload request.
func (d *LocalDispatcher) Dispatch(_ context.Context, documentID uint) error {
	d.pool.Submit(func() {
		d.processor.Process(context.Background(), documentID)
	})
	return nil
}

// QueueDispatcher publishes ingestion jobs to RabbitMQ and falls back to the
// local dispatcher when the broker rejects the message.
type QueueDispatcher struct {
	publisher Publisher
	fallback  *LocalDispatcher
}

func NewQueueDispatcher(publisher Publisher, fallback *LocalDispatcher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher, fallback: fallback}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, documentID uint) error {
	err := d.publisher.PublishIngest(ctx, documentID)
	if err == nil {
		return nil
	}
	if d.fallback == nil {
		return err
	}
	slog.Warn("publish ingest job failed, processing locally", "document_id", documentID, "error", err)
	return d.fallback.Dispatch(ctx, documentID)
}
