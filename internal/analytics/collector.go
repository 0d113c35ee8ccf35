package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/kafka"
)

// Publisher delivers events to the analytics topic. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers events and publishes them from a single goroutine so
// tracking never blocks the query path. Events are dropped when the buffer
// is full.
type Collector struct {
	publisher Publisher
	eventCh   chan kafka.Event
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan kafka.Event, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track queues a search event.
func (c *Collector) Track(event SearchEvent) {
	c.enqueue(kafka.Event{Key: event.Query, Value: event, Headers: typeHeader(event.Type)})
}

// TrackIndex queues an index mutation event.
func (c *Collector) TrackIndex(event IndexEvent) {
	event.Type = EventIndex
	c.enqueue(kafka.Event{Key: "index:" + event.Op, Value: event, Headers: typeHeader(EventIndex)})
}

func typeHeader(t EventType) map[string]string {
	return map[string]string{"event-type": string(t)}
}

func (c *Collector) enqueue(event kafka.Event) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the queue to drain. It must
// be called after Start and at most once.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event kafka.Event) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Error("failed to publish analytics event", "key", event.Key, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
