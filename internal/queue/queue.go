package queue

import (
	"context"
	"fmt"
)

// Publisher publishes export messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ExportMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ExportMessage) error

// Consumer consumes export messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// ExportQueue carries export requests raised by status changes.
const ExportQueue = "order.export"

var workQueues = []string{ExportQueue}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.order.export.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// ExportDLQ receives exports that exhausted their retry budget and rejected deliveries.
var ExportDLQ = DLQName(ExportQueue)

// WorkQueueNames returns all work queues.
func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, queue := range workQueues {
		queues = append(queues, DLQName(queue))
	}
	return queues
}
