package main

import (
	"context"
	"log"

	"chunkstore/config"
	"chunkstore/internal/domain/file"
	"chunkstore/internal/handler"
	"chunkstore/internal/redis"
	"chunkstore/internal/repository"
	"chunkstore/internal/server"
	"chunkstore/internal/services"
	"chunkstore/internal/sessioncache"
	"chunkstore/internal/storage"
	"chunkstore/internal/sweeper"
	"chunkstore/pkg/database"
	"chunkstore/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)

	// Connect to Database
	database.Connect(cfg)
	if err := database.DB.AutoMigrate(
		&file.CanonicalObject{},
		&file.StoredFile{},
	); err != nil {
		log.Fatalf("Failed to apply GORM migrations: %v", err)
	}

	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objects, err := storage.NewClient(ctx, storage.S3Config{
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
	files := repository.NewFileRepository(database.DB)
	canon := repository.NewCanonicalObjectRepository(database.DB)

	policy := services.Policy{
		DefaultChunkSize: cfg.DefaultChunkSize,
		MaxChunks:        cfg.MaxChunks,
		SessionTTL:       cfg.SessionTTL,
		CASRetries:       cfg.CASRetries,
		StorageRetries:   cfg.StorageRetries,
		StrictChunkSize:  cfg.StrictChunkSize,
	}

	uploads := services.NewUploadService(store, objects, files, policy, l)
	tracker := services.NewChunkTracker(store, objects, policy, l)
	finalizer := services.NewFinalizer(store, objects, canon, files, policy, l)

	// In-process sweeper; cmd/worker runs the same pass from the task queue
	// for deployments that prefer out-of-process reclamation.
	sweep := sweeper.NewProcessor(store, objects, l, cfg.SweepInterval, cfg.SweepGrace)
	sweeper.NewRunner(sweep).Start(ctx)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Upload: handler.NewUploadHandler(uploads, tracker, finalizer),
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
