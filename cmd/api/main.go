package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/ai-concierge/internal/chat"
	"github.com/suPer8Hu/ai-concierge/internal/config"
	"github.com/suPer8Hu/ai-concierge/internal/content"
	"github.com/suPer8Hu/ai-concierge/internal/db"
	"github.com/suPer8Hu/ai-concierge/internal/httpapi"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
	"github.com/suPer8Hu/ai-concierge/internal/retrieval"
	"github.com/suPer8Hu/ai-concierge/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-concierge/internal/store/redisstore"
	"github.com/suPer8Hu/ai-concierge/internal/usage"
)

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
		log.Fatal("db connect failed", "driver", cfg.DBDriver, "err", err)
	}
	models := append(content.Tables(), chat.Tables()...)
	models = append(models, &usage.Record{})
	if err := db.Migrate(gdb, models...); err != nil {
		log.Fatal("db migrate failed", "err", err)
	}

	// redis is optional: without it the content cache is bypassed
	var cache content.JSONCache
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable, content cache disabled", "addr", cfg.RedisAddr, "err", err)
		_ = rds.Close()
	} else {
		cache = rds
		defer rds.Close()
	}
	cancel()

	// usage events go to rabbitmq when reachable, else straight to the db
	var sink usage.Sink
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.UsageQueue)
	if err != nil {
		log.Warn("rabbitmq unavailable, metering to db", "err", err)
		sink = usage.NewDBSink(gdb)
	} else {
		defer pub.Close()
		sink = usage.NewQueueSink(pub)
	}
	recorder := usage.NewAsync(sink, 1024, log)

	contentRepo := content.NewRepo(gdb)
	svc := chat.NewService(chat.Deps{
		Repo:     chat.NewRepo(gdb),
		Content:  content.NewCached(contentRepo, cache, cfg.ContentCacheTTL, log),
		Context:  retrieval.NewRetriever(contentRepo, cfg.Assistant),
		Registry: newRegistry(cfg, log),
		Usage:    recorder,
		Log:      log,
	}, cfg.Assistant)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv, "provider", cfg.AIProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	svc.Wait()
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Error("usage flush", "err", err)
	}
}
