package usage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-concierge/internal/logger"
)

// Sink delivers one event synchronously.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// DBSink writes events straight to usage_logs.
type DBSink struct {
	db *gorm.DB
}

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Deliver(ctx context.Context, e Event) error {
	return s.db.WithContext(ctx).Create(e.toRecord()).Error
}

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// QueueSink publishes events as JSON for cmd/worker to persist.
type QueueSink struct {
	pub Publisher
}

func NewQueueSink(pub Publisher) *QueueSink {
	return &QueueSink{pub: pub}
}

func (s *QueueSink) Deliver(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, body)
}

// Async buffers events for a single delivery goroutine. When the buffer is
// full events are dropped, so Record never blocks a request.
type Async struct {
	sink    Sink
	log     *logger.Logger
	events  chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(sink Sink, buffer int, log *logger.Logger) *Async {
	if log == nil {
		log = logger.Nop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:    sink,
		log:     log,
		events:  make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Record(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- e:
	default:
		a.log.Warn("usage event dropped", "kind", e.Kind, "bot_id", e.BotID)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Deliver(ctx, e); err != nil {
			a.log.Warn("usage delivery failed", "kind", e.Kind, "bot_id", e.BotID, "err", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("usage: drain interrupted"), ctx.Err())
	}
}
