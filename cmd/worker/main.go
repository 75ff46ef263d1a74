package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"chunkstore/config"
	"chunkstore/internal/queue"
	"chunkstore/internal/redis"
	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"
	"chunkstore/internal/sweeper"
	"chunkstore/internal/worker"
	"chunkstore/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(logger.ProductionMode)
	logger.SetGlobalLogger(l)

	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	redisOpt := asynq.RedisClientOpt{
		Addr:     redis.GetConfig().Addr(),
		Password: cfg.RedisPassword,
	}

	objects, err := storage.NewClient(context.Background(), storage.S3Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Endpoint:   cfg.S3Endpoint,
		PresignTTL: cfg.S3PresignTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	store := sessioncache.NewRedisStore(redis.GetClient())
	sweep := sweeper.NewProcessor(store, objects, l, cfg.SweepInterval, cfg.SweepGrace)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(
		"@every "+cfg.SweepInterval.String(),
		asynq.NewTask(queue.SweepSessionsTask, nil),
	); err != nil {
		log.Fatalf("Failed to register sweep schedule: %v", err)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			log.Fatalf("Scheduler exited with error: %v", err)
		}
	}()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
	})
	processor := worker.NewProcessor(sweep, l)
	if err := srv.Run(processor.Handler()); err != nil {
		log.Fatalf("Worker exited with error: %v", err)
	}
}
