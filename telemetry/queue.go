package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/EPecherkin/sloth-chat/logger"
)

const DefaultQueueSize = 256

// Queue decouples the chat flow from the underlying sink: Record enqueues and
// returns immediately, dropping the record if the buffer is full. The wrapped
// sink runs on a single background goroutine.
type Queue struct {
	sink    Sink
	records chan Record
	lgr     *slog.Logger

	mu      sync.Mutex
	closed  bool
	drained chan struct{}
}

func NewQueue(sink Sink, size int, lgr *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	queue := &Queue{
		sink:    sink,
		records: make(chan Record, size),
		lgr:     lgr.With(logger.CALLER, "telemetry queue"),
		drained: make(chan struct{}),
	}
	go queue.drain()
	return queue
}

func (queue *Queue) Record(_ context.Context, record Record) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	if queue.closed {
		queue.lgr.With(logger.TURN, record.TurnID).Warn("queue closed, dropping record")
		return
	}
	select {
	case queue.records <- record:
	default:
		queue.lgr.With(logger.TURN, record.TurnID).Warn("queue full, dropping record")
	}
}

func (queue *Queue) drain() {
	for record := range queue.records {
		queue.sink.Record(context.Background(), record)
	}
	close(queue.drained)
}

// Close stops accepting records and waits until buffered ones are forwarded.
// Records arriving after Close are dropped.
func (queue *Queue) Close() {
	queue.mu.Lock()
	if !queue.closed {
		queue.closed = true
		close(queue.records)
	}
	queue.mu.Unlock()
	<-queue.drained
}
