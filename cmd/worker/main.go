package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/ai-concierge/internal/config"
	"github.com/suPer8Hu/ai-concierge/internal/db"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
	"github.com/suPer8Hu/ai-concierge/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-concierge/internal/usage"
)

const (
	maxRetries = 5
	retryDelay = 5 * time.Second
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", "err", err)
	}
	if err := db.Migrate(gdb, &usage.Record{}); err != nil {
		log.Fatal("db migrate failed", "err", err)
	}
	sink := usage.NewDBSink(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", "err", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.UsageQueue); err != nil {
		log.Fatal("queue declare", "err", err)
	}

	//  strict concurrency control
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", "err", err)
	}

	msgs, err := ch.Consume(cfg.UsageQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", "queue", cfg.UsageQueue, "concurrency", concurrency)

	r := &retrier{ch: ch, queue: cfg.UsageQueue + ".retry"}

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With("worker", workerID)
			for d := range jobs {
				start := time.Now()
				err := usage.Handle(ctx, sink, d.Body)
				switch {
				case err == nil:
					if err := d.Ack(false); err != nil {
						wlog.Warn("ack failed", "err", err)
					}
				case errors.Is(err, usage.ErrBadEvent):
					wlog.Warn("bad usage event, dead-lettering", "err", err)
					_ = d.Nack(false, false)
				default:
					attempt := retryCount(d) + 1
					if attempt > maxRetries {
						wlog.Error("usage event exhausted retries", "attempt", attempt, "err", err)
						_ = d.Nack(false, false)
						continue
					}
					if perr := r.publish(ctx, d, attempt); perr != nil {
						wlog.Error("retry publish failed, requeueing", "err", perr)
						_ = d.Nack(false, true)
						continue
					}
					wlog.Warn("usage event scheduled for retry", "attempt", attempt, "cost", time.Since(start), "err", err)
					_ = d.Ack(false)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

type retrier struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

// publish parks the delivery on the retry queue; its TTL routes it back.
func (r *retrier) publish(ctx context.Context, d amqp.Delivery, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.ch.PublishWithContext(pctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Expiration:   strconv.FormatInt((time.Duration(attempt) * retryDelay).Milliseconds(), 10),
		Headers:      amqp.Table{"x-retry-count": int32(attempt)},
	})
}

func retryCount(d amqp.Delivery) int {
	switch v := d.Headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
