package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hostel/internal/audit"
	"hostel/internal/config"
	"hostel/internal/queue"
	"hostel/internal/store"
)

// Worker consumes audit events published by the API and persists them
// to the audit log.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema bootstrap failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "hostel:audit")
	}

	repo := audit.NewRepository(db.Client)

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for events...")
	for evt := range events {
		if evt.Kind == "" {
			continue
		}
		if err := repo.Insert(ctx, evt.Kind, string(evt.Detail)); err != nil {
			log.Printf("audit insert failed for %s: %v", evt.Kind, err)
			continue
		}
		log.Printf("audit event %s recorded", evt.Kind)
	}

	log.Println("worker stopped")
}
